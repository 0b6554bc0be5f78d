package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/ndbaker1/datt/internal/segment"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DATT_"

// Config defines configuration for the datt CLI.
type Config struct {
	URL            string        `yaml:"url"`
	Output         string        `yaml:"output"`
	WorkDir        string        `yaml:"work_dir"`
	WorkBucket     string        `yaml:"work_bucket"`
	OutputBucket   string        `yaml:"output_bucket"`
	ChunkSize      int           `yaml:"chunk_size"`
	Parallel       int           `yaml:"parallel"`
	EmptyThreshold int           `yaml:"empty_threshold"`
	Start          int           `yaml:"start"`
	Formats        []string      `yaml:"formats"`
	NameTemplate   string        `yaml:"name_template"`
	Progress       bool          `yaml:"progress"`
	Keep           bool          `yaml:"keep"`
	LogLevel       string        `yaml:"log_level"`
	Timeout        time.Duration `yaml:"timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior for transport errors and 5xx
// responses. A 404 is never retried: it means the format guess was wrong.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with the defaults of the original tool.
func Default() Config {
	return Config{
		WorkDir:      ".temp",
		ChunkSize:    10,
		Parallel:     30,
		Start:        1,
		Formats:      append([]string(nil), segment.DefaultFormats...),
		NameTemplate: segment.DefaultTemplate,
		LogLevel:     "info",
		Timeout:      30 * time.Second,
		Retry: RetryConfig{
			Attempts:   2,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 5 * time.Second,
		},
	}
}

// yamlConfig mirrors Config with durations as strings. Pointers mark
// fields whose zero value is meaningful.
type yamlConfig struct {
	URL            string          `yaml:"url"`
	Output         string          `yaml:"output"`
	WorkDir        string          `yaml:"work_dir"`
	WorkBucket     string          `yaml:"work_bucket"`
	OutputBucket   string          `yaml:"output_bucket"`
	ChunkSize      int             `yaml:"chunk_size"`
	Parallel       *int            `yaml:"parallel"`
	EmptyThreshold int             `yaml:"empty_threshold"`
	Start          *int            `yaml:"start"`
	Formats        []string        `yaml:"formats"`
	NameTemplate   string          `yaml:"name_template"`
	Progress       bool            `yaml:"progress"`
	Keep           bool            `yaml:"keep"`
	LogLevel       string          `yaml:"log_level"`
	Timeout        string          `yaml:"timeout"`
	Retry          yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   *int   `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default().Merge(Config{
		URL:            yc.URL,
		Output:         yc.Output,
		WorkDir:        yc.WorkDir,
		WorkBucket:     yc.WorkBucket,
		OutputBucket:   yc.OutputBucket,
		ChunkSize:      yc.ChunkSize,
		EmptyThreshold: yc.EmptyThreshold,
		Formats:        yc.Formats,
		NameTemplate:   yc.NameTemplate,
		Progress:       yc.Progress,
		Keep:           yc.Keep,
		LogLevel:       yc.LogLevel,
	})
	if yc.Parallel != nil {
		cfg.Parallel = *yc.Parallel
	}
	if yc.Start != nil {
		cfg.Start = *yc.Start
	}
	if yc.Retry.Attempts != nil {
		cfg.Retry.Attempts = *yc.Retry.Attempts
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeout", yc.Timeout, &cfg.Timeout},
		{"retry.backoff", yc.Retry.Backoff, &cfg.Retry.Backoff},
		{"retry.max_backoff", yc.Retry.MaxBackoff, &cfg.Retry.MaxBackoff},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Variables use the DATT_ prefix, e.g. DATT_CHUNK_SIZE. DATT_FORMATS is a
// comma-separated list.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"URL":           &c.URL,
		"OUTPUT":        &c.Output,
		"WORK_DIR":      &c.WorkDir,
		"WORK_BUCKET":   &c.WorkBucket,
		"OUTPUT_BUCKET": &c.OutputBucket,
		"NAME_TEMPLATE": &c.NameTemplate,
		"LOG_LEVEL":     &c.LogLevel,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CHUNK_SIZE":      &c.ChunkSize,
		"PARALLEL":        &c.Parallel,
		"EMPTY_THRESHOLD": &c.EmptyThreshold,
		"START":           &c.Start,
		"RETRY_ATTEMPTS":  &c.Retry.Attempts,
	}
	for name, dst := range ints {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":           &c.Timeout,
		"RETRY_BACKOFF":     &c.Retry.Backoff,
		"RETRY_MAX_BACKOFF": &c.Retry.MaxBackoff,
	}
	for name, dst := range durations {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v := os.Getenv(EnvPrefix + "FORMATS"); v != "" {
		c.Formats = SplitList(v)
	}
	if v := os.Getenv(EnvPrefix + "PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "KEEP"); v != "" {
		c.Keep = v == "true" || v == "1"
	}

	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration for a segments run.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("config: url is required")
	}
	if c.Output == "" {
		return errors.New("config: output is required")
	}
	if c.WorkDir == "" && c.WorkBucket == "" {
		return errors.New("config: work_dir or work_bucket is required")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Parallel < 0 {
		return errors.New("config: parallel must not be negative")
	}
	if c.EmptyThreshold < 0 {
		return errors.New("config: empty_threshold must not be negative")
	}
	if c.Start < 0 {
		return errors.New("config: start must not be negative")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if _, err := c.Locator(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Locator builds the segment locator described by URL, Formats and
// NameTemplate.
func (c *Config) Locator() (*segment.Locator, error) {
	ring, err := segment.NewRing(c.Formats)
	if err != nil {
		return nil, err
	}
	return segment.NewLocator(c.URL, c.NameTemplate, ring)
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.WorkDir != "" {
		c.WorkDir = override.WorkDir
	}
	if override.WorkBucket != "" {
		c.WorkBucket = override.WorkBucket
	}
	if override.OutputBucket != "" {
		c.OutputBucket = override.OutputBucket
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Parallel != 0 {
		c.Parallel = override.Parallel
	}
	if override.EmptyThreshold != 0 {
		c.EmptyThreshold = override.EmptyThreshold
	}
	if override.Start != 0 {
		c.Start = override.Start
	}
	if len(override.Formats) != 0 {
		c.Formats = append([]string(nil), override.Formats...)
	}
	if override.NameTemplate != "" {
		c.NameTemplate = override.NameTemplate
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Keep {
		c.Keep = override.Keep
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
