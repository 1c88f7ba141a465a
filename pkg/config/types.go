// Package config defines the configuration model and its loader.
package config

import (
	"fmt"
)

// ============================================================================
// TOP-LEVEL CONFIG
// ============================================================================

// Config is the full application configuration.
type Config struct {
	Logging       LoggingConfig       `yaml:"logging" mapstructure:"logging"`
	Oracle        OracleConfig        `yaml:"oracle" mapstructure:"oracle"`
	DataSource    DataSourceConfig    `yaml:"datasource" mapstructure:"datasource"`
	Explorer      ExplorerConfig      `yaml:"explorer" mapstructure:"explorer"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Oracle.SetDefaults()
	c.Explorer.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the configuration for fatal misconfiguration.
func (c *Config) Validate() error {
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if err := c.DataSource.Validate(); err != nil {
		return fmt.Errorf("datasource: %w", err)
	}
	if err := c.Explorer.Validate(); err != nil {
		return fmt.Errorf("explorer: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// ============================================================================
// ORACLE
// ============================================================================

// OracleConfig configures the external reasoning oracle.
type OracleConfig struct {
	// Type selects the provider: "openai" or "gemini".
	Type string `yaml:"type" mapstructure:"type"`

	Host   string `yaml:"host" mapstructure:"host"`
	Model  string `yaml:"model" mapstructure:"model"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`

	// ContextBudget caps the token count of the serialized request
	// context sent with each call.
	ContextBudget int `yaml:"context_budget" mapstructure:"context_budget"`

	// Timeout, retries and backoff for the HTTP client, in seconds.
	Timeout    int `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay int `yaml:"retry_delay" mapstructure:"retry_delay"`
}

func (c *OracleConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Host == "" {
		switch c.Type {
		case "gemini":
			c.Host = "https://generativelanguage.googleapis.com"
		default:
			c.Host = "https://api.openai.com"
		}
	}
	if c.Model == "" {
		switch c.Type {
		case "gemini":
			c.Model = "gemini-2.0-flash"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.ContextBudget == 0 {
		c.ContextBudget = 6000
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

func (c *OracleConfig) Validate() error {
	switch c.Type {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown oracle type: %q", c.Type)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	return nil
}

// ============================================================================
// DATA SOURCE
// ============================================================================

// DataSourceConfig configures the tabular process-record store.
type DataSourceConfig struct {
	// Type selects the backend. Only "excel" is currently implemented.
	Type string `yaml:"type" mapstructure:"type"`

	// Path is the workbook file path.
	Path string `yaml:"path" mapstructure:"path"`

	// ProcessTable is the sheet holding candidate process records.
	ProcessTable string `yaml:"process_table" mapstructure:"process_table"`

	// FlowTable is the sheet holding process input flows.
	FlowTable string `yaml:"flow_table" mapstructure:"flow_table"`
}

func (c *DataSourceConfig) Validate() error {
	// A missing data source is fatal misconfiguration: every run needs
	// candidate records.
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.ProcessTable == "" {
		return fmt.Errorf("process_table is required")
	}
	if c.FlowTable == "" {
		return fmt.Errorf("flow_table is required")
	}
	return nil
}

// ============================================================================
// EXPLORER
// ============================================================================

// ExplorerConfig configures recursion control and sampling.
type ExplorerConfig struct {
	// Mode selects the recursion variant: "tree" spawns an independent
	// call tree per sub-requirement, "queue" flattens pending
	// sub-requirements into one sequentially processed queue.
	Mode string `yaml:"mode" mapstructure:"mode"`

	// MaxDepth bounds tree-mode recursion.
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`

	// MaxIterations bounds queue-mode processing.
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`

	// MaxConcurrency bounds each wave of concurrent oracle calls and
	// child runs.
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// SamplesPerAxis is how many independent oracle samples feed the
	// consensus for each (candidate, axis) pair.
	SamplesPerAxis int `yaml:"samples_per_axis" mapstructure:"samples_per_axis"`

	// ShortlistSize bounds how many flows of a selected process spawn
	// sub-requirements.
	ShortlistSize int `yaml:"shortlist_size" mapstructure:"shortlist_size"`

	// CanonicalPrefixLen is the truncation length of the canonical
	// requirement key. Distinct long texts sharing a prefix collide and
	// are treated as duplicates; that trade-off is intentional, and the
	// length is configurable because no particular value is load-bearing.
	CanonicalPrefixLen int `yaml:"canonical_prefix_len" mapstructure:"canonical_prefix_len"`
}

func (c *ExplorerConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "tree"
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 3
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 10
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 5
	}
	if c.SamplesPerAxis == 0 {
		c.SamplesPerAxis = 3
	}
	if c.ShortlistSize == 0 {
		c.ShortlistSize = 3
	}
	if c.CanonicalPrefixLen == 0 {
		c.CanonicalPrefixLen = 120
	}
}

func (c *ExplorerConfig) Validate() error {
	switch c.Mode {
	case "tree", "queue":
	default:
		return fmt.Errorf("unknown explorer mode: %q", c.Mode)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be at least 1")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1")
	}
	if c.SamplesPerAxis < 1 {
		return fmt.Errorf("samples_per_axis must be at least 1")
	}
	return nil
}

// ============================================================================
// OBSERVABILITY
// ============================================================================

// ObservabilityConfig configures metrics exposure and tracing.
type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Port    int  `yaml:"port" mapstructure:"port"`

	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 9090
	}
	c.Tracing.SetDefaults()
}

func (c *ObservabilityConfig) Validate() error {
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Exporter is "otlp" (gRPC) or "stdout".
	Exporter string `yaml:"exporter" mapstructure:"exporter"`

	// Endpoint is the OTLP collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// SamplingRate is the fraction of traces sampled, 0.0 to 1.0.
	SamplingRate float64 `yaml:"sampling_rate" mapstructure:"sampling_rate"`

	// Insecure disables TLS on the exporter connection. Defaults to true
	// for local collectors; a pointer so an explicit false survives
	// defaulting.
	Insecure *bool `yaml:"insecure" mapstructure:"insecure"`

	// Timeout for exporter operations, in seconds.
	Timeout int `yaml:"timeout" mapstructure:"timeout"`
}

func (c *TracingConfig) SetDefaults() {
	if c.Exporter == "" {
		c.Exporter = "otlp"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
	if c.Insecure == nil {
		insecure := true
		c.Insecure = &insecure
	}
	if c.Timeout == 0 {
		c.Timeout = 10
	}
}

func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("unknown exporter: %q", c.Exporter)
	}
	if c.Exporter == "otlp" && c.Endpoint == "" {
		return fmt.Errorf("endpoint is required for the otlp exporter")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	return nil
}

// IsInsecure reports whether the exporter connection skips TLS.
func (c *TracingConfig) IsInsecure() bool {
	if c.Insecure == nil {
		return true
	}
	return *c.Insecure
}
