package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage holds report snapshots under slash-separated paths.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

type Config struct {
	Type     string
	LocalDir string
	Bucket   string
	Prefix   string
	Region   string
}

// New builds the Storage named by cfg.Type.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", TypeLocal:
		return NewLocalStorage(cfg.LocalDir)
	case TypeS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires a bucket")
		}
		return NewS3Storage(ctx, cfg.Bucket, cfg.Prefix, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
