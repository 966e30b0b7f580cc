package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomic_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "file.txt")
	if err := WriteAtomic(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want %q", data, "hello")
	}
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	for i := 0; i < 3; i++ {
		if err := WriteAtomic(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteAtomic: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestCopyAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.bin")
	n, err := CopyAtomic(path, strings.NewReader("streamed"), 0o644)
	if err != nil {
		t.Fatalf("CopyAtomic: %v", err)
	}
	if n != int64(len("streamed")) {
		t.Errorf("n = %d, want %d", n, len("streamed"))
	}
}

func TestWriteJSON_ReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	in := map[string]string{"user": "alice"}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("expected lock file: %v", err)
	}

	var out map[string]string
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out["user"] != "alice" {
		t.Errorf("user = %q, want alice", out["user"])
	}
}

func TestReadJSON_Missing(t *testing.T) {
	var out map[string]string
	err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &out)
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
