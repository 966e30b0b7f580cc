package submission

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/josephlewis42/magpie/internal/fileutil"
)

// Store keeps uploaded files and document manifests on disk, one directory
// per document: <baseDir>/<id>/document.json plus the uploaded files.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.magpie/uploads, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".magpie", "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) docDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) manifestPath(id string) string {
	return filepath.Join(s.docDir(id), "document.json")
}

// cleanName reduces an uploaded file name to a safe base name.
func cleanName(name string) (string, error) {
	// Browsers on Windows may send full client-side paths.
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." || base == "document.json" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return base, nil
}

// AddFile copies r into the document's directory and records its path.
func (s *Store) AddFile(doc *Document, name string, r io.Reader) (string, error) {
	base, err := cleanName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.docDir(doc.ID), base)
	if _, err := fileutil.CopyAtomic(path, r, 0o644); err != nil {
		return "", fmt.Errorf("store %s: %w", base, err)
	}
	doc.Files = append(doc.Files, path)
	return path, nil
}

// Save writes the document manifest, including its results as TAP.
func (s *Store) Save(doc *Document) error {
	if err := fileutil.WriteJSON(s.manifestPath(doc.ID), doc); err != nil {
		return fmt.Errorf("write document.json: %w", err)
	}
	return nil
}

// Get reads a document manifest.
func (s *Store) Get(id string) (*Document, error) {
	if _, err := cleanName(id); err != nil || filepath.Base(id) != id {
		return nil, fmt.Errorf("invalid document id %q", id)
	}
	var doc Document
	if err := fileutil.ReadJSON(s.manifestPath(id), &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document %s not found", id)
		}
		return nil, err
	}
	return &doc, nil
}

// List returns all saved documents, oldest first.
func (s *Store) List() ([]*Document, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var docs []*Document
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		doc, err := s.Get(entry.Name())
		if err != nil {
			continue // skip directories without a manifest
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// Remove deletes all data for a document.
func (s *Store) Remove(id string) error {
	if _, err := cleanName(id); err != nil || filepath.Base(id) != id {
		return fmt.Errorf("invalid document id %q", id)
	}
	dir := s.docDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("document %s not found", id)
	}
	return os.RemoveAll(dir)
}
