package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Identity is the immutable self-description of the emulated device. Built
// once at startup; every component reads it, none mutates it.
type Identity struct {
	Name         string
	UUID         string
	Hostname     string
	Port         int
	ResourcePath string
	ServiceTypes []string
}

type IdentityConfig struct {
	Name         string
	UUID         string
	Port         int
	ResourcePath string
	ServiceTypes []string
}

func NewIdentity(cfg IdentityConfig) (Identity, error) {
	if cfg.Name == "" {
		return Identity{}, fmt.Errorf("printer name is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return Identity{}, fmt.Errorf("printer port must be between 1 and 65535, got %d", cfg.Port)
	}
	if len(cfg.ServiceTypes) == 0 {
		return Identity{}, fmt.Errorf("at least one service type is required")
	}

	id := cfg.UUID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return Identity{}, fmt.Errorf("invalid printer uuid %q: %w", cfg.UUID, err)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	if !strings.HasSuffix(hostname, ".local") && !strings.Contains(hostname, ".") {
		hostname += ".local"
	}

	path := strings.Trim(cfg.ResourcePath, "/")
	if path == "" {
		path = "printers/fake_printer"
	}

	return Identity{
		Name:         cfg.Name,
		UUID:         id,
		Hostname:     hostname,
		Port:         cfg.Port,
		ResourcePath: path,
		ServiceTypes: append([]string(nil), cfg.ServiceTypes...),
	}, nil
}

// URI is the printer URI clients use to submit jobs.
func (id Identity) URI() string {
	return fmt.Sprintf("ipp://%s:%d/%s", id.Hostname, id.Port, id.ResourcePath)
}

// AdminURL is published in the Bonjour TXT record.
func (id Identity) AdminURL() string {
	return fmt.Sprintf("http://%s:%d/", id.Hostname, id.Port)
}

// JobURI is the URI reported for a submitted job.
func (id Identity) JobURI(jobID int64) string {
	return fmt.Sprintf("%s/jobs/%d", id.URI(), jobID)
}
