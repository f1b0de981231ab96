package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Printer   PrinterConfig   `yaml:"printer"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Spool     SpoolConfig     `yaml:"spool"`
	Convert   ConvertConfig   `yaml:"convert"`
	History   HistoryConfig   `yaml:"history"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type PrinterConfig struct {
	Name         string `yaml:"name"`
	UUID         string `yaml:"uuid"`
	ResourcePath string `yaml:"resource_path"`
}

type DiscoveryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ServiceTypes []string      `yaml:"service_types"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type SpoolConfig struct {
	OutputDir     string        `yaml:"output_dir"`
	OutputFormat  string        `yaml:"output_format"`
	RetentionDays int           `yaml:"retention_days"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

type ConvertConfig struct {
	GhostscriptPath string        `yaml:"ghostscript_path"`
	Timeout         time.Duration `yaml:"timeout"`
	WorkerCount     int           `yaml:"worker_count"`
	QueueSize       int           `yaml:"queue_size"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type WebhookConfig struct {
	URL        string        `yaml:"url"`
	Secret     string        `yaml:"secret"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type AuthConfig struct {
	AdminPassword string `yaml:"admin_password"`
	JWTSecret     string `yaml:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         6310,
			ReadTimeout:  120 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Printer: PrinterConfig{
			Name:         "HP LaserJet Pro M404dn",
			ResourcePath: "printers/fake_printer",
		},
		Discovery: DiscoveryConfig{
			Enabled:      true,
			ServiceTypes: []string{"_ipp._tcp", "_ipp._tcp,_universal"},
			RetryDelay:   15 * time.Second,
		},
		Spool: SpoolConfig{
			OutputDir:     "./print_jobs",
			OutputFormat:  "pdf",
			RetentionDays: 7,
			PruneInterval: time.Hour,
		},
		Convert: ConvertConfig{
			GhostscriptPath: "gs",
			Timeout:         30 * time.Second,
			WorkerCount:     2,
			QueueSize:       100,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./data/history.db",
		},
		Webhook: WebhookConfig{
			Timeout:    10 * time.Second,
			RetryCount: 3,
			RetryDelay: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INKWELL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("INKWELL_PRINTER_NAME"); v != "" {
		cfg.Printer.Name = v
	}

	if v := os.Getenv("INKWELL_OUTPUT_DIR"); v != "" {
		cfg.Spool.OutputDir = v
	}

	if v := os.Getenv("INKWELL_GS_PATH"); v != "" {
		cfg.Convert.GhostscriptPath = v
	}

	if v := os.Getenv("INKWELL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Printer.Name == "" {
		return fmt.Errorf("printer name is required")
	}

	if c.Discovery.Enabled && len(c.Discovery.ServiceTypes) == 0 {
		return fmt.Errorf("discovery requires at least one service type")
	}

	if c.Spool.OutputDir == "" {
		return fmt.Errorf("spool output directory is required")
	}

	if c.Spool.OutputFormat != "pdf" && c.Spool.OutputFormat != "raw" {
		return fmt.Errorf("invalid output format: %s (valid: pdf, raw)", c.Spool.OutputFormat)
	}

	if c.Spool.RetentionDays < 0 {
		return fmt.Errorf("retention days must be non-negative")
	}

	if c.Convert.Timeout <= 0 {
		return fmt.Errorf("convert timeout must be positive")
	}

	if c.Convert.WorkerCount < 1 {
		return fmt.Errorf("convert worker count must be at least 1")
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history path is required when history is enabled")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
