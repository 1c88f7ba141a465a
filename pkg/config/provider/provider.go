// Package provider defines the config source abstraction.
//
// Providers load configuration from various sources and support watching
// for changes.
package provider

import (
	"context"
	"fmt"
)

// Type identifies the config source type.
type Type string

const (
	TypeFile   Type = "file"
	TypeConsul Type = "consul"
	TypeEtcd   Type = "etcd"
)

// Provider abstracts config sources.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Type returns the provider type for logging/debugging.
	Type() Type

	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch starts watching for changes and signals via the returned
	// channel. Cancel the context to stop watching. Returns a nil
	// channel if watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Options configures provider creation.
type Options struct {
	// Type specifies the provider type.
	Type Type

	// Path is the config path (file path or key path).
	Path string
}

// New creates a Provider from Options.
func New(opts Options) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return nil, fmt.Errorf("consul provider not yet implemented")
	case TypeEtcd:
		return nil, fmt.Errorf("etcd provider not yet implemented")
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}
