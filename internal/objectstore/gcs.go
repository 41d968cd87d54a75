package objectstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/gerhard-ee/sqlload/internal/config"
)

// GCS stores objects in Google Cloud Storage
type GCS struct {
	client *storage.Client
}

func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %v", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) object(uri string) (*storage.ObjectHandle, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	return g.client.Bucket(loc.Bucket).Object(loc.Key), nil
}

func (g *GCS) Upload(ctx context.Context, uri string, r io.Reader) error {
	obj, err := g.object(uri)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload %s: %v", uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %v", uri, err)
	}
	return nil
}

func (g *GCS) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	obj, err := g.object(uri)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", uri, err)
	}
	return r, nil
}

func (g *GCS) Delete(ctx context.Context, uri string) error {
	obj, err := g.object(uri)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %v", uri, err)
	}
	return nil
}
