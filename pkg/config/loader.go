package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/upchain/pkg/config/provider"
)

// Loader loads and watches configuration from a Provider.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange sets a callback invoked when config changes.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// NewLoader creates a Loader with the given provider.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, parses, expands, and validates the configuration.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	raw, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return Parse(raw)
}

// Watch starts watching the provider for changes. On every change the config
// is reloaded and handed to the OnChange callback; parse failures keep the
// previous config in effect.
func (l *Loader) Watch(ctx context.Context) error {
	if l.onChange == nil {
		return nil
	}

	ch, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	if ch == nil {
		return nil
	}

	go func() {
		for range ch {
			cfg, err := l.Load(ctx)
			if err != nil {
				slog.Warn("Config reload failed, keeping previous config", "error", err)
				continue
			}
			l.onChange(cfg)
		}
	}()

	return nil
}

// Close releases the underlying provider.
func (l *Loader) Close() error {
	return l.provider.Close()
}

// Parse decodes raw YAML into a validated Config. Environment references in
// string values (${VAR}, ${VAR:-default}, $VAR) are expanded before
// decoding, after consulting any local .env file.
func Parse(raw []byte) (*Config, error) {
	LoadDotEnv()

	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	expanded := expandValue(tree)

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
