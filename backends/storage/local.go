package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kbukum/backendkit/errors"
)

// localStore keeps objects as files under a base directory.
type localStore struct {
	base string
}

func newLocalStore(basePath string) (*localStore, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &localStore{base: abs}, nil
}

// resolve maps an object path into the base directory, refusing paths that
// climb out of it.
func (s *localStore) resolve(path string) (string, error) {
	full := filepath.Join(s.base, filepath.Clean("/"+path))
	if full != s.base && !strings.HasPrefix(full, s.base+string(filepath.Separator)) {
		return "", errors.InvalidInput("path", "escapes the storage root")
	}
	return full, nil
}

func (s *localStore) Upload(_ context.Context, path string, r io.Reader) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return f.Close()
}

func (s *localStore) Download(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, errors.NotFound("object", path)
	}
	return f, err
}

func (s *localStore) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *localStore) Exists(_ context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	switch _, err := os.Stat(full); {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

func (s *localStore) URL(_ context.Context, path string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: full}).String(), nil
}

func (s *localStore) List(_ context.Context, prefix string) ([]FileInfo, error) {
	files := []FileInfo{}
	err := filepath.WalkDir(s.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		ct := mime.TypeByExtension(filepath.Ext(path))
		if ct == "" {
			ct = "application/octet-stream"
		}
		files = append(files, FileInfo{Path: rel, Size: info.Size(), LastModified: info.ModTime(), ContentType: ct})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	slices.SortFunc(files, func(a, b FileInfo) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

// Probe checks the base directory is still a writable directory.
func (s *localStore) Probe(context.Context) error {
	info, err := os.Stat(s.base)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.base)
	}
	f, err := os.CreateTemp(s.base, ".probe-*")
	if err != nil {
		return fmt.Errorf("base directory not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
