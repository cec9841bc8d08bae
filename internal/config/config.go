// Package config handles vppe configuration from environment variables
// and an optional YAML config file.
package config

import "time"

// Config holds all runtime settings. Every field can be set through an
// environment variable with the VPPE_ prefix (e.g. VPPE_OLLAMA_BASE_URL)
// or through the config file.
type Config struct {
	// Ollama vision endpoint
	OllamaBaseURL string `mapstructure:"ollama_base_url" yaml:"ollama_base_url"`
	OllamaModel   string `mapstructure:"ollama_model" yaml:"ollama_model"`

	// OCRTimeout is the per-request timeout in seconds.
	OCRTimeout int `mapstructure:"ocr_timeout" yaml:"ocr_timeout"`
	// OCRRetries is the maximum number of attempts per OCR call.
	OCRRetries int `mapstructure:"ocr_retries" yaml:"ocr_retries"`

	// Pipeline
	RenderDPI       int `mapstructure:"render_dpi" yaml:"render_dpi"`
	JPEGQuality     int `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	OCRWorkers      int `mapstructure:"ocr_workers" yaml:"ocr_workers"`
	RenderQueueSize int `mapstructure:"render_queue_size" yaml:"render_queue_size"`
	PagesPerChapter int `mapstructure:"pages_per_chapter" yaml:"pages_per_chapter"`

	// Storage
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	JobTTLHours int    `mapstructure:"job_ttl_hours" yaml:"job_ttl_hours"`
	PDFTTLHours int    `mapstructure:"pdf_ttl_hours" yaml:"pdf_ttl_hours"`

	// SSE
	SSERingBufferSize int `mapstructure:"sse_ring_buffer_size" yaml:"sse_ring_buffer_size"`

	// DefaultOCRPrompt is used when a job does not carry its own prompt.
	DefaultOCRPrompt string `mapstructure:"default_ocr_prompt" yaml:"default_ocr_prompt"`
}

// OCRRequestTimeout returns the OCR timeout as a duration.
func (c *Config) OCRRequestTimeout() time.Duration {
	return time.Duration(c.OCRTimeout) * time.Second
}

// JobTTL returns the job retention period.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobTTLHours) * time.Hour
}

// PDFTTL returns the source PDF retention period.
func (c *Config) PDFTTL() time.Duration {
	return time.Duration(c.PDFTTLHours) * time.Hour
}
