package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NoAnnox is the annox name meaning "no extra annotation package"
const NoAnnox = "--"

// LocationsConfig holds where LAF sources live and where compiled data and
// task results go
type LocationsConfig struct {
	LafDir  string `yaml:"laf_dir"`
	WorkDir string `yaml:"work_dir"`
}

// Config represents the complete configuration of LAF Fabric
type Config struct {
	Locations  LocationsConfig  `yaml:"locations"`
	Compile    CompileConfig    `yaml:"compile"`
	Loader     LoaderConfig     `yaml:"loader"`
	Cache      CacheConfig      `yaml:"cache"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Disk       DiskConfig       `yaml:"disk"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Validation ValidateConfig   `yaml:"validate"`
}

// CompileConfig holds compiler configuration
type CompileConfig struct {
	Force bool `yaml:"force"`
}

// LoaderConfig holds loader configuration
type LoaderConfig struct {
	OTypeFeature string `yaml:"otype_feature"`
	// OTypeRank orders object types from largest to smallest, used by the
	// etcbc-sort preparer to order nodes that span the same text
	OTypeRank []string `yaml:"otype_rank"`
}

// CacheConfig holds configuration of the cache of cleared data items
type CacheConfig struct {
	MaxSize         int64         `yaml:"max_size"`
	FrequencyWeight float64       `yaml:"frequency_weight"`
	RecencyWeight   float64       `yaml:"recency_weight"`
	AdaptiveWindow  time.Duration `yaml:"adaptive_window"`
}

// WorkerPoolConfig holds configuration of the pool used for parsing and loading
type WorkerPoolConfig struct {
	MaxWorkers  int           `yaml:"max_workers"`
	QueueSize   int           `yaml:"queue_size"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// DiskConfig holds free space thresholds for compiled data
type DiskConfig struct {
	CheckInterval    time.Duration `yaml:"check_interval"`
	WarningThreshold float64       `yaml:"warning_threshold"`
	FullThreshold    float64       `yaml:"full_threshold"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Verbose string `yaml:"verbose"`
}

// ValidateConfig holds configuration of generated file validation
type ValidateConfig struct {
	Enabled bool `yaml:"enabled"`
	// Command is a template with {schema} and {xmlfile} placeholders
	Command      string `yaml:"command"`
	SchemaSrcDir string `yaml:"schema_src_dir"`
	SchemaDstDir string `yaml:"schema_dst_dir"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration rooted at the given directories
func Default(lafDir, workDir string) *Config {
	cfg := &Config{Locations: LocationsConfig{LafDir: lafDir, WorkDir: workDir}}
	setDefaults(cfg)
	return cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Loader.OTypeFeature == "" {
		cfg.Loader.OTypeFeature = "db:otype"
	}

	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 268435456 // 256MB
	}
	if cfg.Cache.FrequencyWeight == 0 {
		cfg.Cache.FrequencyWeight = 0.5
	}
	if cfg.Cache.RecencyWeight == 0 {
		cfg.Cache.RecencyWeight = 0.5
	}
	if cfg.Cache.AdaptiveWindow == 0 {
		cfg.Cache.AdaptiveWindow = 5 * time.Minute
	}

	if cfg.WorkerPool.MaxWorkers == 0 {
		cfg.WorkerPool.MaxWorkers = 4
	}
	if cfg.WorkerPool.QueueSize == 0 {
		cfg.WorkerPool.QueueSize = 256
	}
	if cfg.WorkerPool.StopTimeout == 0 {
		cfg.WorkerPool.StopTimeout = 30 * time.Second
	}

	if cfg.Disk.CheckInterval == 0 {
		cfg.Disk.CheckInterval = 10 * time.Second
	}
	if cfg.Disk.WarningThreshold == 0 {
		cfg.Disk.WarningThreshold = 90.0
	}
	if cfg.Disk.FullThreshold == 0 {
		cfg.Disk.FullThreshold = 98.0
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9105
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.Verbose == "" {
		cfg.Logging.Verbose = "NORMAL"
	}

	if cfg.Validation.SchemaDstDir == "" && cfg.Locations.WorkDir != "" {
		cfg.Validation.SchemaDstDir = filepath.Join(cfg.Locations.WorkDir, "schemas")
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Locations.LafDir == "" {
		return fmt.Errorf("locations.laf_dir is required")
	}
	if c.Locations.WorkDir == "" {
		return fmt.Errorf("locations.work_dir is required")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	if c.Disk.FullThreshold <= 0 || c.Disk.FullThreshold > 100 {
		return fmt.Errorf("disk.full_threshold must be between 0 and 100")
	}
	if c.Disk.WarningThreshold > c.Disk.FullThreshold {
		return fmt.Errorf("disk.warning_threshold must not exceed disk.full_threshold")
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must not be negative")
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be console or json")
	}
	if c.Validation.Command != "" && !strings.Contains(c.Validation.Command, "{xmlfile}") {
		return fmt.Errorf("validate.command must contain {xmlfile}")
	}
	return nil
}

// SourceHeader is the GrAF resource header of a source
func (l LocationsConfig) SourceHeader(source string) string {
	return filepath.Join(l.LafDir, source, source+".hdr")
}

// AnnoxHeader is the GrAF header of an extra annotation package
func (l LocationsConfig) AnnoxHeader(annox string) string {
	return filepath.Join(l.LafDir, "annotations", annox, annox+".hdr")
}

// CompiledDir holds the compiled main data of a source
func (l LocationsConfig) CompiledDir(source string) string {
	return filepath.Join(l.WorkDir, source, "bin")
}

// AnnoxCompiledDir holds an annox compiled against a source
func (l LocationsConfig) AnnoxCompiledDir(source, annox string) string {
	return filepath.Join(l.WorkDir, source, "annotations", annox, "bin")
}

// PreparedDir holds data computed by preparers
func (l LocationsConfig) PreparedDir(source string) string {
	return filepath.Join(l.WorkDir, source, "prepared")
}

// TaskDir holds the results and log of one task run
func (l LocationsConfig) TaskDir(source, annox, task string) string {
	if annox == "" {
		annox = NoAnnox
	}
	return filepath.Join(l.WorkDir, source, annox, task)
}
