package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is built once at startup and handed to every component.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Staging      StagingConfig      `yaml:"staging"`
	Slides       SlidesConfig       `yaml:"slides"`
	Conversion   ConversionConfig   `yaml:"conversion"`
	Data         DataConfig         `yaml:"data"`
	Mirrors      []MirrorConfig     `yaml:"mirrors"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	Port            int           `yaml:"port"`
	PublicBaseURL   string        `yaml:"publicBaseUrl"` // overrides scheme://host derived from the request
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// TrustProxyHeaders honours X-Forwarded-Proto when building URLs. Only
	// enable it behind a reverse proxy that sets the header itself.
	TrustProxyHeaders bool `yaml:"trustProxyHeaders"`
	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser; "*" allows any. Empty disables CORS headers.
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
}

// StagingConfig controls where uploads land before conversion.
type StagingConfig struct {
	Dir               string   `yaml:"dir"`
	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
}

// SlidesConfig describes the public output directory and how it is addressed.
type SlidesConfig struct {
	Dir               string `yaml:"dir"`
	ServeRoot         string `yaml:"serveRoot"`
	ManifestExtension string `yaml:"manifestExtension"`
	IDPrefix          string `yaml:"idPrefix"`
}

// ConversionConfig describes the external converter. Args are placed before
// the input path, output dir and output id, e.g. command "python3" with
// args ["convert.py"].
type ConversionConfig struct {
	Command         string        `yaml:"command"`
	Args            []string      `yaml:"args"`
	MaxConcurrent   int           `yaml:"maxConcurrent"`
	Timeout         time.Duration `yaml:"timeout"` // zero means run to completion
	MaxCaptureBytes int           `yaml:"maxCaptureBytes"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

// MirrorConfig is one extra publish target. Type is one of directServe, s3,
// gcs or sftp; Options carries the backend specific keys.
type MirrorConfig struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:"options"`
}

type HousekeepingConfig struct {
	Interval         time.Duration `yaml:"interval"`
	RecordRetention  time.Duration `yaml:"recordRetention"`
	StagingRetention time.Duration `yaml:"stagingRetention"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// DefaultConfig mirrors the reference deployment: 5 GiB uploads, DZI output
// under ./public/slides served at /slides.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:            "0.0.0.0",
			Port:               3001,
			ShutdownTimeout:    30 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Staging: StagingConfig{
			Dir:               "./uploads",
			MaxUploadBytes:    5 << 30,
			AllowedExtensions: []string{"svs", "tiff", "tif", "ndpi", "vms", "vmu", "scn"},
		},
		Slides: SlidesConfig{
			Dir:               "./public/slides",
			ServeRoot:         "/slides",
			ManifestExtension: "dzi",
			IDPrefix:          "slide",
		},
		Conversion: ConversionConfig{
			Command:         "python3",
			Args:            []string{"convert.py"},
			MaxConcurrent:   runtime.NumCPU(),
			MaxCaptureBytes: 64 << 10,
		},
		Data: DataConfig{
			Dir: "./data",
		},
		Housekeeping: HousekeepingConfig{
			Interval:         24 * time.Hour,
			RecordRetention:  30 * 24 * time.Hour,
			StagingRetention: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
		},
	}
}

// Load builds the configuration from defaults, then the first config file
// found, then WSISERVE_* environment variables. An explicit path must exist.
func Load(path string) (*Config, string, error) {
	cfg := DefaultConfig()

	source, err := loadFromFile(&cfg, path)
	if err != nil {
		return nil, "", err
	}

	if err := loadFromEnv(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, source, nil
}

func loadFromFile(cfg *Config, explicit string) (string, error) {
	if explicit != "" {
		if err := readYAML(cfg, explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		os.Getenv("WSISERVE_CONFIG"),
		"./config.yaml",
		"/etc/wsiserve/config.yaml",
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := readYAML(cfg, p); err != nil {
			return "", err
		}
		return p, nil
	}

	return "built-in defaults (no config file found)", nil
}

func readYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	if val := os.Getenv("WSISERVE_ADDRESS"); val != "" {
		cfg.Server.Address = val
	}
	// PORT is honoured for parity with common PaaS conventions.
	for _, key := range []string{"PORT", "WSISERVE_PORT"} {
		if val := os.Getenv(key); val != "" {
			port, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, val, err)
			}
			cfg.Server.Port = port
		}
	}
	if val := os.Getenv("WSISERVE_PUBLIC_BASE_URL"); val != "" {
		cfg.Server.PublicBaseURL = val
	}
	if val := os.Getenv("WSISERVE_TRUST_PROXY_HEADERS"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid WSISERVE_TRUST_PROXY_HEADERS %q: %w", val, err)
		}
		cfg.Server.TrustProxyHeaders = b
	}
	// comma separated; "none" turns CORS off
	if val := os.Getenv("WSISERVE_CORS_ORIGINS"); val != "" {
		cfg.Server.CORSAllowedOrigins = nil
		if val != "none" {
			cfg.Server.CORSAllowedOrigins = strings.FieldsFunc(val, func(r rune) bool {
				return r == ',' || r == ' '
			})
		}
	}
	if val := os.Getenv("WSISERVE_STAGING_DIR"); val != "" {
		cfg.Staging.Dir = val
	}
	if val := os.Getenv("WSISERVE_MAX_UPLOAD_BYTES"); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid WSISERVE_MAX_UPLOAD_BYTES %q: %w", val, err)
		}
		cfg.Staging.MaxUploadBytes = n
	}
	if val := os.Getenv("WSISERVE_SLIDES_DIR"); val != "" {
		cfg.Slides.Dir = val
	}
	if fields := strings.Fields(os.Getenv("WSISERVE_CONVERTER")); len(fields) > 0 {
		cfg.Conversion.Command = fields[0]
		cfg.Conversion.Args = fields[1:]
	}
	if val := os.Getenv("WSISERVE_MAX_CONCURRENT_CONVERSIONS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid WSISERVE_MAX_CONCURRENT_CONVERSIONS %q: %w", val, err)
		}
		cfg.Conversion.MaxConcurrent = n
	}
	if val := os.Getenv("WSISERVE_CONVERSION_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid WSISERVE_CONVERSION_TIMEOUT %q: %w", val, err)
		}
		cfg.Conversion.Timeout = d
	}
	if val := os.Getenv("WSISERVE_DATA_DIR"); val != "" {
		cfg.Data.Dir = val
	}
	if val := os.Getenv("WSISERVE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("WSISERVE_LOG_FILE"); val != "" {
		cfg.Logging.File = val
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Staging.Dir == "" {
		return fmt.Errorf("staging dir must be set")
	}
	if c.Staging.MaxUploadBytes <= 0 {
		return fmt.Errorf("maxUploadBytes must be positive, got %d", c.Staging.MaxUploadBytes)
	}
	if len(c.Staging.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}
	if c.Slides.Dir == "" {
		return fmt.Errorf("slides dir must be set")
	}
	if !strings.HasPrefix(c.Slides.ServeRoot, "/") || c.Slides.ServeRoot == "/" {
		return fmt.Errorf("serveRoot must be an absolute sub-path, got %q", c.Slides.ServeRoot)
	}
	if c.Slides.ManifestExtension == "" || strings.Contains(c.Slides.ManifestExtension, ".") {
		return fmt.Errorf("invalid manifest extension %q", c.Slides.ManifestExtension)
	}
	if c.Conversion.Command == "" {
		return fmt.Errorf("conversion command must be set")
	}
	if c.Conversion.MaxConcurrent < 1 {
		return fmt.Errorf("conversion maxConcurrent must be at least 1, got %d", c.Conversion.MaxConcurrent)
	}
	if c.Conversion.MaxCaptureBytes <= 0 {
		return fmt.Errorf("conversion maxCaptureBytes must be positive")
	}
	if nested, err := isNested(c.Slides.Dir, c.Staging.Dir); err != nil {
		return err
	} else if nested {
		return fmt.Errorf("staging dir %q must not be inside or contain slides dir %q", c.Staging.Dir, c.Slides.Dir)
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data dir must be set")
	}
	// the ledgers hold staged paths and converter output
	if nested, err := isNested(c.Slides.Dir, c.Data.Dir); err != nil {
		return err
	} else if nested {
		return fmt.Errorf("data dir %q must not be inside or contain slides dir %q", c.Data.Dir, c.Slides.Dir)
	}
	names := make(map[string]bool, len(c.Mirrors))
	for _, m := range c.Mirrors {
		switch m.Type {
		case "directServe", "s3", "gcs", "sftp":
		default:
			return fmt.Errorf("mirror %q: unknown type %q", m.Name, m.Type)
		}
		if m.Name == "" || names[m.Name] {
			return fmt.Errorf("mirror names must be unique and non-empty, got %q", m.Name)
		}
		names[m.Name] = true
	}
	return nil
}

// isNested reports whether either directory contains the other. Staged
// uploads and ledgers must never be reachable through the public slides path.
func isNested(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", a, err)
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", b, err)
	}
	within := func(parent, child string) bool {
		rel, err := filepath.Rel(parent, child)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
	return within(absA, absB) || within(absB, absA), nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// SuccessDBPath is the pebble directory for completed conversions.
func (c *Config) SuccessDBPath() string {
	return filepath.Join(c.Data.Dir, "success.db")
}

// FailuresDBPath is the pebble directory for failed conversions and mirrors.
func (c *Config) FailuresDBPath() string {
	return filepath.Join(c.Data.Dir, "failures.db")
}

// MirrorQueuePath is the pebble directory backing the mirror queue.
func (c *Config) MirrorQueuePath() string {
	return filepath.Join(c.Data.Dir, "MirrorQueue.db")
}
