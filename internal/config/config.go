// Package config carries per-run settings for the scheduler. There is no
// process-global state; a RunConfig is built once by the caller and
// threaded down explicitly.
package config

import (
	"github.com/petrel-evals/petrel/internal/models"
)

// DefaultGateLimit bounds in-flight adapter calls when neither the spec
// nor an option says otherwise.
const DefaultGateLimit = 4

// RunConfig is the resolved configuration for one scheduler run.
type RunConfig struct {
	spec          *models.Spec
	transcriptDir string
	compress      bool
	verbose       bool
	logPath       string
	gateLimit     int
}

// Option configures a RunConfig.
type Option func(*RunConfig)

// WithTranscriptDir sets the directory sealed transcripts are written to.
// Empty disables persistence.
func WithTranscriptDir(dir string) Option {
	return func(c *RunConfig) {
		c.transcriptDir = dir
	}
}

// WithCompressTranscripts gzips transcripts on write.
func WithCompressTranscripts(compress bool) Option {
	return func(c *RunConfig) {
		c.compress = compress
	}
}

// WithVerbose enables verbose progress reporting.
func WithVerbose(verbose bool) Option {
	return func(c *RunConfig) {
		c.verbose = verbose
	}
}

// WithLogPath sets the session log destination. Empty disables session
// logging.
func WithLogPath(path string) Option {
	return func(c *RunConfig) {
		c.logPath = path
	}
}

// WithGateLimit overrides the adapter-call concurrency gate capacity.
func WithGateLimit(n int) Option {
	return func(c *RunConfig) {
		c.gateLimit = n
	}
}

// NewRunConfig builds the configuration for one run of spec.
func NewRunConfig(spec *models.Spec, opts ...Option) *RunConfig {
	c := &RunConfig{spec: spec}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Spec returns the rollout spec this run executes.
func (c *RunConfig) Spec() *models.Spec {
	return c.spec
}

// TranscriptDir returns the transcript output directory, empty when
// persistence is disabled.
func (c *RunConfig) TranscriptDir() string {
	return c.transcriptDir
}

// CompressTranscripts reports whether transcripts are gzipped on write.
func (c *RunConfig) CompressTranscripts() bool {
	return c.compress
}

// Verbose reports whether verbose progress output is enabled.
func (c *RunConfig) Verbose() bool {
	return c.verbose
}

// LogPath returns the session log destination, empty when disabled.
func (c *RunConfig) LogPath() string {
	return c.logPath
}

// GateLimit resolves the adapter-call gate capacity: explicit option
// first, then the spec's max_concurrent, then the default.
func (c *RunConfig) GateLimit() int {
	if c.gateLimit > 0 {
		return c.gateLimit
	}
	if c.spec != nil && c.spec.Config.MaxConcurrent > 0 {
		return c.spec.Config.MaxConcurrent
	}
	return DefaultGateLimit
}
