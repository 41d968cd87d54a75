package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/gerhard-ee/sqlload/internal/config"
)

// Azure stores objects in Azure Blob Storage. The bucket part of the URI is
// the container name.
type Azure struct {
	client *azblob.Client
}

func NewAzure(cfg config.AzureConfig) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %v", err)
	}
	return &Azure{client: client}, nil
}

func (a *Azure) Upload(ctx context.Context, uri string, r io.Reader) error {
	loc, err := ParseLocation(uri)
	if err != nil {
		return err
	}
	if _, err := a.client.UploadStream(ctx, loc.Bucket, loc.Key, r, nil); err != nil {
		return fmt.Errorf("failed to upload %s: %v", uri, err)
	}
	return nil
}

func (a *Azure) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.DownloadStream(ctx, loc.Bucket, loc.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", uri, err)
	}
	return resp.Body, nil
}

func (a *Azure) Delete(ctx context.Context, uri string) error {
	loc, err := ParseLocation(uri)
	if err != nil {
		return err
	}
	if _, err := a.client.DeleteBlob(ctx, loc.Bucket, loc.Key, nil); err != nil {
		return fmt.Errorf("failed to delete %s: %v", uri, err)
	}
	return nil
}
