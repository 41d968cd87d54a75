// Package objectstore moves staged files between the local machine and the
// buckets that warehouses bulk load from.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gerhard-ee/sqlload/internal/config"
)

// Store reads and writes objects addressed by URI
type Store interface {
	Upload(ctx context.Context, uri string, r io.Reader) error
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	Delete(ctx context.Context, uri string) error
}

// Location is a parsed object URI
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	if l.Scheme == "file" {
		return "file://" + l.Key
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseLocation splits a URI into scheme, bucket, and key. Plain paths are
// treated as local files. Azure URIs use azure://<container>/<blob>.
func ParseLocation(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("empty object location")
	}
	if !strings.Contains(uri, "://") {
		abs, err := filepath.Abs(uri)
		if err != nil {
			return Location{}, fmt.Errorf("failed to resolve path %s: %v", uri, err)
		}
		return Location{Scheme: "file", Key: abs}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("invalid object location %s: %v", uri, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "file":
		return Location{Scheme: "file", Key: u.Host + u.Path}, nil
	case "s3", "gs", "azure":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, fmt.Errorf("object location %s must name a bucket and a key", uri)
		}
		return Location{Scheme: scheme, Bucket: u.Host, Key: key}, nil
	default:
		return Location{}, fmt.Errorf("unsupported object scheme: %s", u.Scheme)
	}
}

// Mux routes each call to the backend registered for the URI scheme
type Mux struct {
	backends map[string]Store
}

func NewMux() *Mux {
	return &Mux{backends: make(map[string]Store)}
}

// Register installs a backend for a scheme, replacing any previous one
func (m *Mux) Register(scheme string, s Store) {
	m.backends[scheme] = s
}

func (m *Mux) backend(uri string) (Store, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	s, ok := m.backends[loc.Scheme]
	if !ok {
		return nil, fmt.Errorf("no object store configured for %s://", loc.Scheme)
	}
	return s, nil
}

func (m *Mux) Upload(ctx context.Context, uri string, r io.Reader) error {
	s, err := m.backend(uri)
	if err != nil {
		return err
	}
	return s.Upload(ctx, uri, r)
}

func (m *Mux) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	s, err := m.backend(uri)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, uri)
}

func (m *Mux) Delete(ctx context.Context, uri string) error {
	s, err := m.backend(uri)
	if err != nil {
		return err
	}
	return s.Delete(ctx, uri)
}

// New builds a Mux with the local backend plus every cloud backend the
// configuration enables. S3 is always available through the default AWS
// credential chain.
func New(ctx context.Context, cfg config.ObjectStoreConfig, logger *slog.Logger) (*Mux, error) {
	m := NewMux()
	m.Register("file", Local{})

	s3Store, err := NewS3(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	m.Register("s3", s3Store)

	if cfg.GCS.Enabled {
		gcs, err := NewGCS(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		m.Register("gs", gcs)
	}

	if cfg.Azure.ConnectionString != "" {
		az, err := NewAzure(cfg.Azure)
		if err != nil {
			return nil, err
		}
		m.Register("azure", az)
	}

	schemes := make([]string, 0, len(m.backends))
	for scheme := range m.backends {
		schemes = append(schemes, scheme)
	}
	logger.Debug("object stores ready", "schemes", schemes)
	return m, nil
}
