package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores objects on the local filesystem
type Local struct{}

func (Local) path(uri string) (string, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return "", err
	}
	if loc.Scheme != "file" {
		return "", fmt.Errorf("not a local path: %s", uri)
	}
	return loc.Key, nil
}

func (l Local) Upload(ctx context.Context, uri string, r io.Reader) error {
	path, err := l.path(uri)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	return f.Close()
}

func (l Local) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	path, err := l.path(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	return f, nil
}

func (l Local) Delete(ctx context.Context, uri string) error {
	path, err := l.path(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %v", path, err)
	}
	return nil
}
