package objectstore

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		wantErr bool
	}{
		{uri: "s3://landing/exports/2024/events.csv", want: Location{Scheme: "s3", Bucket: "landing", Key: "exports/2024/events.csv"}},
		{uri: "gs://landing/events.parquet", want: Location{Scheme: "gs", Bucket: "landing", Key: "events.parquet"}},
		{uri: "azure://raw/events.csv", want: Location{Scheme: "azure", Bucket: "raw", Key: "events.csv"}},
		{uri: "file:///tmp/events.csv", want: Location{Scheme: "file", Key: "/tmp/events.csv"}},
		{uri: "s3://landing", wantErr: true},
		{uri: "ftp://host/file.csv", wantErr: true},
		{uri: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseLocation(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLocationRelativePath(t *testing.T) {
	got, err := ParseLocation("data/events.csv")
	require.NoError(t, err)
	assert.Equal(t, "file", got.Scheme)
	assert.True(t, filepath.IsAbs(got.Key))
	assert.Equal(t, "file://"+got.Key, got.String())
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMux()
	m.Register("file", Local{})

	uri := "file://" + filepath.Join(t.TempDir(), "nested", "events.csv")
	require.NoError(t, m.Upload(ctx, uri, strings.NewReader("id,val\n1,a\n")))

	rc, err := m.Open(ctx, uri)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "id,val\n1,a\n", string(data))

	require.NoError(t, m.Delete(ctx, uri))
	_, err = m.Open(ctx, uri)
	require.Error(t, err)

	// deleting twice is not an error
	require.NoError(t, m.Delete(ctx, uri))
}

func TestMuxUnknownScheme(t *testing.T) {
	m := NewMux()
	m.Register("file", Local{})

	_, err := m.Open(context.Background(), "gs://bucket/key.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no object store configured for gs://")
}
