package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeTestConfig(t, "server:\n  title: Before\n")
	changes := make(chan *Config, 4)

	w, err := NewWatcher(path, zap.NewNop(), func(cfg *Config) { changes <- cfg })
	require.NoError(t, err)
	w.debounce = 30 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  title: After\n"), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, "After", cfg.Server.Title)
		assert.Equal(t, 8080, cfg.Server.Port, "defaults applied on reload")
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeTestConfig(t, "server:\n  title: Before\n")
	changes := make(chan *Config, 4)

	w, err := NewWatcher(path, nil, func(cfg *Config) { changes <- cfg })
	require.NoError(t, err)
	w.debounce = 30 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644))

	select {
	case cfg := <-changes:
		t.Fatalf("invalid config delivered: %+v", cfg.Server)
	case <-time.After(300 * time.Millisecond):
	}
	w.Stop()
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(writeTestConfig(t, ""), nil, func(*Config) {})
	require.NoError(t, err)
	w.Stop()
}

func TestWatcher_StopAfterFailedStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "missing", "magpie.yaml")
	w, err := NewWatcher(path, nil, func(*Config) {})
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after Start failed")
	}
}
