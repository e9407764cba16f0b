// Package config loads the per-process TOML configuration, one file per
// service (store, processor), parsed with github.com/pelletier/go-toml/v2.
package config

import (
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"

	"github.com/xapiens/rvpf/rvpferrors"
)

// StoreConfig configures one rvpf-store process.
type StoreConfig struct {
	Service string `toml:"service"`

	DataPath string `toml:"data_path"`

	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`

	ArchiverMode   string        `toml:"archiver_mode"` // "jit" or "scheduled"
	ArchiverPeriod time.Duration `toml:"archiver_period"`
	ArchiverRate   float64       `toml:"archiver_rate"`

	Retention []RetentionConfig `toml:"retention"`
}

// RetentionConfig names one point's retention rule. Point is the point's
// UUID: the store service has no metadata arena of its own to resolve a
// name against.
type RetentionConfig struct {
	Point   string        `toml:"point"`
	MaxAge  time.Duration `toml:"max_age"`
	MaxRows int           `toml:"max_rows"`
	Attic   bool          `toml:"attic"`
}

// ProcessorConfig configures one rvpf-processor process.
type ProcessorConfig struct {
	Service string `toml:"service"`

	MetadataPath string `toml:"metadata_path"`
	StorePath    string `toml:"store_path"`

	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`

	BatchMaxSize      int           `toml:"batch_max_size"`
	BatchMaxWait      time.Duration `toml:"batch_max_wait"`
	LookupConcurrency int64         `toml:"lookup_concurrency"`

	// CacheMaxBytes sizes the result cache, e.g. "256MB": it sets the
	// cache's per-point entry cap and does not bound its total footprint.
	// Zero defers to a fraction of the host's total memory.
	CacheMaxBytes datasize.ByteSize `toml:"cache_max_bytes"`
}

// LoadStoreConfig reads and parses a StoreConfig from path.
func LoadStoreConfig(path string) (StoreConfig, error) {
	var cfg StoreConfig
	if err := loadTOML(path, &cfg); err != nil {
		return StoreConfig{}, err
	}
	if cfg.ArchiverMode == "" {
		cfg.ArchiverMode = "jit"
	}
	return cfg, nil
}

// LoadProcessorConfig reads and parses a ProcessorConfig from path.
func LoadProcessorConfig(path string) (ProcessorConfig, error) {
	var cfg ProcessorConfig
	if err := loadTOML(path, &cfg); err != nil {
		return ProcessorConfig{}, err
	}
	if cfg.BatchMaxSize <= 0 {
		cfg.BatchMaxSize = 256
	}
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = 8
	}
	return cfg, nil
}

func loadTOML(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return rvpferrors.NewBadParameter("config.path", err.Error())
	}
	if err := toml.Unmarshal(raw, v); err != nil {
		return rvpferrors.NewFormat("config parse "+path, err)
	}
	return nil
}
