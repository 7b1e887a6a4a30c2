// Package storage is the directory and file collaborator of the server:
// it lists the served directory and reads files by name over an afero.Fs.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrNotFound = errors.New("file not found")

type FileInfo struct {
	Name  string
	Size  int64
	IsDir bool
}

type Store struct {
	fs      afero.Fs
	dir     string
	sandbox bool
}

// New serves dir on fsys. Without sandbox a requested name is resolved
// against dir, and absolute names or names with ".." reach outside of it.
// With sandbox every name is confined to dir.
func New(fsys afero.Fs, dir string, sandbox bool) (*Store, error) {
	if fsys == nil {
		return nil, errors.New("storage.New: filesystem is nil")
	}
	if dir == "" {
		dir = "."
	}

	info, err := fsys.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("storage.New: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage.New: %s is not a directory", dir)
	}

	if sandbox {
		if !filepath.IsAbs(dir) {
			return nil, fmt.Errorf("storage.New: sandboxed directory %s must be absolute", dir)
		}
		return &Store{fs: afero.NewBasePathFs(fsys, dir), dir: "/", sandbox: true}, nil
	}
	return &Store{fs: fsys, dir: dir}, nil
}

// NewOS serves dir from the local disk.
func NewOS(dir string, sandbox bool) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage.NewOS: %w", err)
	}
	return New(afero.NewOsFs(), abs, sandbox)
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Sandboxed() bool {
	return s.sandbox
}

// List returns the entry names of the served directory sorted by name,
// without the "." and ".." pseudo-entries.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == "." || entry.Name() == ".." {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Stat reports ErrNotFound for names that do not exist or are directories.
func (s *Store) Stat(name string) (FileInfo, error) {
	path, err := s.resolve(name)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return FileInfo{}, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		return FileInfo{}, fmt.Errorf("%s is a directory: %w", name, ErrNotFound)
	}

	return FileInfo{Name: info.Name(), Size: info.Size()}, nil
}

// ReadFile reads a whole file into memory.
func (s *Store) ReadFile(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *Store) resolve(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if s.sandbox {
		// BasePathFs joins and confines the name itself
		return name, nil
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Join(s.dir, name), nil
}

func HumanizeSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	units := []string{"KB", "MB", "GB", "TB"}
	exp := -1
	val := float64(size)

	for val >= unit && exp < len(units)-1 {
		val /= unit
		exp++
	}

	if val < 10 {
		return fmt.Sprintf("%.1f %s", val, units[exp])
	}
	return fmt.Sprintf("%d %s", int(val), units[exp])
}
