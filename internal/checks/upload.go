package checks

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/josephlewis42/magpie/internal/submission"
	"github.com/josephlewis42/magpie/internal/tap"
)

// BasicUpload reports basic facts about the uploaded files.
type BasicUpload struct{}

func (b *BasicUpload) Info() Info {
	return Info{
		Name:     "Basic Upload",
		Author:   "Joseph Lewis <joehms22@gmail.com>",
		Version:  "0.1",
		License:  "BSD 3 Clause",
		Defaults: Settings{Enabled: true},
	}
}

func (b *BasicUpload) Check(_ context.Context, doc *submission.Document, settings Settings) ([]*tap.Collector, error) {
	if !settings.Enabled {
		return nil, nil
	}

	c := tap.New("Basic Upload")
	if len(doc.Files) == 0 {
		c.Fail("Has at least one file")
		return []*tap.Collector{c}, nil
	}
	for _, path := range doc.Files {
		c.Pass("Has at least one file")
		c.Assert(isScratchFile(path), "Is a scratch file?",
			tap.OnFail("Oops, it looks like you didn't upload a scratch file, try again!"))
	}
	return []*tap.Collector{c}, nil
}

func isScratchFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sb", ".sb2":
		return true
	}
	return false
}
