// Package storage selects and configures the blob store that downloaded
// pages are written to.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"google.golang.org/api/option"

	"github.com/JakeFAU/concurrent-scraper/internal/storage/gcs"
	"github.com/JakeFAU/concurrent-scraper/internal/storage/local"
	"github.com/JakeFAU/concurrent-scraper/internal/storage/memory"
)

// Supported backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// BlobStore persists one object and returns a URI describing where it landed.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Config selects a backend.
type Config struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// New builds the BlobStore named by cfg.Backend. The returned close function
// releases backend resources and is never nil.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (BlobStore, func() error, error) {
	noop := func() error { return nil }

	var (
		store   BlobStore
		closeFn = noop
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendLocal:
		s, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, noop, fmt.Errorf("local blob store: %w", err)
		}
		store = s
	case BackendMemory:
		store = memory.NewBlobStore()
	case BackendGCS:
		s, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket}, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("gcs blob store: %w", err)
		}
		store = s
		closeFn = s.Close
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return WithPrefix(store, cfg.Prefix), closeFn, nil
}

type prefixed struct {
	prefix string
	next   BlobStore
}

// WithPrefix returns a BlobStore that places every object under prefix.
// An empty prefix returns store unchanged.
func WithPrefix(store BlobStore, prefix string) BlobStore {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return store
	}
	return &prefixed{prefix: prefix, next: store}
}

func (p *prefixed) PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(objectPath) == "" {
		return "", fmt.Errorf("path is required")
	}
	return p.next.PutObject(ctx, path.Join(p.prefix, objectPath), contentType, r)
}
