package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// localOperator serves a directory tree on the local filesystem. All
// paths are relative to the configured root.
type localOperator struct {
	root string
}

func newLocalOperator(root string) (*localOperator, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &StorageError{Op: "init", Path: root, Err: err}
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &StorageError{Op: "init", Path: abs, Err: err}
	}
	return &localOperator{root: abs}, nil
}

func (o *localOperator) abs(path string) string {
	return filepath.Join(o.root, filepath.FromSlash(path))
}

func (o *localOperator) List(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(o.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == o.root {
			return nil
		}
		rel, err := filepath.Rel(o.root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:         filepath.ToSlash(rel),
			Name:         d.Name(),
			IsFile:       d.Type().IsRegular(),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		if len(entries) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (o *localOperator) Stat(ctx context.Context, path string) (Entry, error) {
	info, err := os.Stat(o.abs(path))
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Path:         path,
		Name:         info.Name(),
		IsFile:       info.Mode().IsRegular(),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (o *localOperator) Open(ctx context.Context, path string) (Reader, error) {
	return os.Open(o.abs(path))
}

func (o *localOperator) Write(ctx context.Context, path string, r io.Reader) error {
	dst := o.abs(path)
	if strings.Contains(path, "/") {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	return f.Close()
}

func (o *localOperator) Delete(ctx context.Context, path string) error {
	err := os.Remove(o.abs(path))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
