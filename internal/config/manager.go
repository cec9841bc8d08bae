package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults, environment, and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("ollama_base_url", defaults.OllamaBaseURL)
	viper.SetDefault("ollama_model", defaults.OllamaModel)
	viper.SetDefault("ocr_timeout", defaults.OCRTimeout)
	viper.SetDefault("ocr_retries", defaults.OCRRetries)
	viper.SetDefault("render_dpi", defaults.RenderDPI)
	viper.SetDefault("jpeg_quality", defaults.JPEGQuality)
	viper.SetDefault("ocr_workers", defaults.OCRWorkers)
	viper.SetDefault("render_queue_size", defaults.RenderQueueSize)
	viper.SetDefault("pages_per_chapter", defaults.PagesPerChapter)
	viper.SetDefault("data_dir", defaults.DataDir)
	viper.SetDefault("job_ttl_hours", defaults.JobTTLHours)
	viper.SetDefault("pdf_ttl_hours", defaults.PDFTTLHours)
	viper.SetDefault("sse_ring_buffer_size", defaults.SSERingBufferSize)
	viper.SetDefault("default_ocr_prompt", defaults.DefaultOCRPrompt)

	// Environment variables with VPPE_ prefix
	viper.SetEnvPrefix("VPPE")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.vppe")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# vppe configuration
# Every setting can also be provided through the environment with a
# VPPE_ prefix, e.g. VPPE_OLLAMA_BASE_URL=http://gpu-box:11434

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
