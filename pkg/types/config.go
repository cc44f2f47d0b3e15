package types

import (
	"fmt"
	"time"
)

// StorageConfig locates the on-disk state: the SQLite database and the
// content-addressed blob directory both live under DataDir.
type StorageConfig struct {
	// DataDir is the base directory (contains blobs/ and index/).
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
}

// PageSourceBackend identifies the tool that recovers page text from a PDF.
type PageSourceBackend string

const (
	BackendPDFReader PageSourceBackend = "pdfreader"
	BackendPdftotext PageSourceBackend = "pdftotext"
)

// SegmenterConfig holds settings for the parsing stage.
type SegmenterConfig struct {
	// Backend selects the page source: pdfreader or pdftotext.
	Backend PageSourceBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// MinSegmentChars drops paragraphs shorter than this, such as page
	// numbers and stray glyphs (default 3).
	MinSegmentChars int `json:"min_segment_chars" yaml:"min_segment_chars" mapstructure:"min_segment_chars"`
}

// ExtractionConfig holds settings for the extraction stage.
type ExtractionConfig struct {
	// Parallelism bounds concurrent segment extraction within one job (default 4).
	Parallelism int `json:"parallelism" yaml:"parallelism" mapstructure:"parallelism"`
}

// OrchestratorConfig holds settings for the job worker pool and supervisor.
type OrchestratorConfig struct {
	// Workers is the number of jobs processed concurrently (default 2).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// QueueSize is the capacity of the pending-job channel (default 64).
	QueueSize int `json:"queue_size" yaml:"queue_size" mapstructure:"queue_size"`

	// StaleAfter is how long a job may sit in a non-terminal state before
	// the supervisor fails it with reason timeout (default 30m).
	StaleAfter time.Duration `json:"stale_after" yaml:"stale_after" mapstructure:"stale_after"`

	// SuperviseInterval is the supervisor tick (default 1m).
	SuperviseInterval time.Duration `json:"supervise_interval" yaml:"supervise_interval" mapstructure:"supervise_interval"`
}

// QueryConfig holds settings for the answer engine.
type QueryConfig struct {
	// MaxClaims caps the claims quoted in one answer (default 50).
	MaxClaims int `json:"max_claims" yaml:"max_claims" mapstructure:"max_claims"`

	// CacheTTL is how long computed answers are memoized (default 10m).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// MaxUploadBytes rejects larger uploads (default 64 MiB).
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`

	// SubmitRate is the sustained document submissions per second (default 5).
	SubmitRate float64 `json:"submit_rate" yaml:"submit_rate" mapstructure:"submit_rate"`

	// SubmitBurst is the submission burst size (default 10).
	SubmitBurst int `json:"submit_burst" yaml:"submit_burst" mapstructure:"submit_burst"`
}

// LogConfig selects the logger preset.
type LogConfig struct {
	// Mode is "development" or "production".
	Mode string `json:"mode" yaml:"mode" mapstructure:"mode"`
}

// Config groups all stage configurations.
type Config struct {
	Storage      StorageConfig      `json:"storage" yaml:"storage" mapstructure:"storage"`
	Segmenter    SegmenterConfig    `json:"segmenter" yaml:"segmenter" mapstructure:"segmenter"`
	Extraction   ExtractionConfig   `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator" mapstructure:"orchestrator"`
	Query        QueryConfig        `json:"query" yaml:"query" mapstructure:"query"`
	Server       ServerConfig       `json:"server" yaml:"server" mapstructure:"server"`
	Log          LogConfig          `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the configuration used when no file or environment
// override is present.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{DataDir: "data"},
		Segmenter: SegmenterConfig{
			Backend:         BackendPDFReader,
			MinSegmentChars: 3,
		},
		Extraction: ExtractionConfig{Parallelism: 4},
		Orchestrator: OrchestratorConfig{
			Workers:           2,
			QueueSize:         64,
			StaleAfter:        30 * time.Minute,
			SuperviseInterval: time.Minute,
		},
		Query: QueryConfig{
			MaxClaims: 50,
			CacheTTL:  10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 64 << 20,
			SubmitRate:     5,
			SubmitBurst:    10,
		},
		Log: LogConfig{Mode: "development"},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	switch c.Segmenter.Backend {
	case BackendPDFReader, BackendPdftotext:
	default:
		return fmt.Errorf("segmenter.backend %q: use %s or %s", c.Segmenter.Backend, BackendPDFReader, BackendPdftotext)
	}
	if c.Orchestrator.Workers <= 0 {
		return fmt.Errorf("orchestrator.workers must be positive, got %d", c.Orchestrator.Workers)
	}
	if c.Extraction.Parallelism <= 0 {
		return fmt.Errorf("extraction.parallelism must be positive, got %d", c.Extraction.Parallelism)
	}
	if c.Server.SubmitRate <= 0 {
		return fmt.Errorf("server.submit_rate must be positive, got %v", c.Server.SubmitRate)
	}
	return nil
}
