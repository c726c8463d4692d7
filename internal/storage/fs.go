package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/checksum"
	"github.com/starford/evolve/internal/models"
)

// tempPattern names staged writes; List skips them as dotfiles.
const tempPattern = ".evolve-tmp-*"

// FS implements Provider backed by one flat local directory.
type FS struct {
	root string // absolute path
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute directory path.
func (f *FS) Root() string {
	return f.root
}

// Path resolves a plain file name against the root. Names with separators or
// traversal are rejected.
func (f *FS) Path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("storage: file name is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || cleaned == ".." || cleaned == "." {
		return "", fmt.Errorf("storage: invalid file name: %s", name)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes root: %s", name)
	}
	return abs, nil
}

// List returns metadata for every file under root whose extension matches ext
// (case-insensitive), sorted by name.
func (f *FS) List(ext string) ([]models.FileMeta, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []models.FileMeta
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fileExt := filepath.Ext(e.Name())
		if ext != "" && !strings.EqualFold(fileExt, ext) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		out = append(out, models.FileMeta{
			Path:     e.Name(),
			Stem:     strings.TrimSuffix(e.Name(), fileExt),
			Checksum: checksum.Sum(data),
			Size:     int64(len(data)),
		})
	}
	return out, nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether name is a regular file under root.
func (f *FS) Exists(name string) bool {
	abs, err := f.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Write replaces name with content atomically.
func (f *FS) Write(name string, content []byte) error {
	return f.commit(name, content, os.Rename)
}

// Create writes content to name only if name does not exist yet. It returns
// an error wrapping apperr.ErrAlreadyExists otherwise.
func (f *FS) Create(name string, content []byte) error {
	err := f.commit(name, content, os.Link)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("storage: %s: %w", name, apperr.ErrAlreadyExists)
	}
	return err
}

// commit stages content in a synced temp file inside root and moves it to
// name with place. The temp file never outlives the call.
func (f *FS) commit(name string, content []byte, place func(tmp, dst string) error) error {
	dst, err := f.Path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, tempPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already gone after a rename

	_, err = tmp.Write(content)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("storage: stage %s: %w", name, err)
	}

	if err := place(tmp.Name(), dst); err != nil {
		return fmt.Errorf("storage: place %s: %w", name, err)
	}
	return nil
}
