package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 6310, cfg.Server.Port)
	assert.Equal(t, "HP LaserJet Pro M404dn", cfg.Printer.Name)
	assert.Equal(t, "printers/fake_printer", cfg.Printer.ResourcePath)
	assert.Equal(t, []string{"_ipp._tcp", "_ipp._tcp,_universal"}, cfg.Discovery.ServiceTypes)
	assert.Equal(t, "pdf", cfg.Spool.OutputFormat)
	assert.Equal(t, "gs", cfg.Convert.GhostscriptPath)
	assert.Equal(t, 2, cfg.Convert.WorkerCount)
	assert.Equal(t, 30*time.Second, cfg.Convert.Timeout)

	require.NoError(t, cfg.Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 7000
printer:
  name: "Test Printer"
spool:
  output_format: raw
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "Test Printer", cfg.Printer.Name)
	assert.Equal(t, "raw", cfg.Spool.OutputFormat)
	// untouched sections keep their defaults
	assert.Equal(t, "gs", cfg.Convert.GhostscriptPath)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0o644))

	t.Setenv("INKWELL_PORT", "8631")
	t.Setenv("INKWELL_PRINTER_NAME", "Env Printer")
	t.Setenv("INKWELL_GS_PATH", "/opt/gs/bin/gs")
	t.Setenv("INKWELL_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8631, cfg.Server.Port)
	assert.Equal(t, "Env Printer", cfg.Printer.Name)
	assert.Equal(t, "/opt/gs/bin/gs", cfg.Convert.GhostscriptPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvInvalidPortIgnored(t *testing.T) {
	t.Setenv("INKWELL_PORT", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 6310, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"empty printer name", func(c *Config) { c.Printer.Name = "" }, "printer name"},
		{"discovery without types", func(c *Config) { c.Discovery.ServiceTypes = nil }, "service type"},
		{"empty output dir", func(c *Config) { c.Spool.OutputDir = "" }, "output directory"},
		{"bad output format", func(c *Config) { c.Spool.OutputFormat = "docx" }, "output format"},
		{"negative retention", func(c *Config) { c.Spool.RetentionDays = -1 }, "retention"},
		{"zero convert timeout", func(c *Config) { c.Convert.Timeout = 0 }, "timeout"},
		{"zero workers", func(c *Config) { c.Convert.WorkerCount = 0 }, "worker count"},
		{"history without path", func(c *Config) { c.History.Path = "" }, "history path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestValidateAllowsDisabledSections(t *testing.T) {
	cfg := defaults()
	cfg.Discovery.Enabled = false
	cfg.Discovery.ServiceTypes = nil
	cfg.History.Enabled = false
	cfg.History.Path = ""

	assert.NoError(t, cfg.Validate())
}
