package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/inkwell/internal/config"
	"github.com/orrn/inkwell/internal/convert"
	"github.com/orrn/inkwell/internal/discovery"
	"github.com/orrn/inkwell/internal/history"
	"github.com/orrn/inkwell/internal/printer"
	"github.com/orrn/inkwell/internal/server"
	"github.com/orrn/inkwell/internal/spool"
	"github.com/orrn/inkwell/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "inkwelld: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := newLogger(cfg.Logging)

	if err := ensureWritableDir(cfg.Spool.OutputDir); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}

	identity, err := printer.NewIdentity(printer.IdentityConfig{
		Name:         cfg.Printer.Name,
		UUID:         cfg.Printer.UUID,
		Port:         cfg.Server.Port,
		ResourcePath: cfg.Printer.ResourcePath,
		ServiceTypes: cfg.Discovery.ServiceTypes,
	})
	if err != nil {
		return err
	}

	catalog, err := printer.NewCatalog(identity)
	if err != nil {
		return fmt.Errorf("attribute catalog: %w", err)
	}

	store := spool.NewStore()

	var hist *history.History
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	sender := webhook.NewSender(cfg.Webhook, log)
	sender.Start()
	defer sender.Stop()

	store.SetNotifier(func(job spool.Job) {
		if hist != nil {
			if err := hist.Record(job); err != nil {
				log.WithError(err).WithField("job_id", job.ID).Warn("failed to archive job")
			}
		}
		sender.JobEvent(job)
	})

	pipeline := convert.NewPipeline(store, cfg.Spool.OutputDir, cfg.Spool.OutputFormat, cfg.Convert, log)
	pipeline.Start()
	defer pipeline.Stop()

	auth, err := server.NewAuthMiddleware(cfg.Auth)
	if err != nil {
		return err
	}

	endpoint := server.NewEndpoint(identity, catalog, store, pipeline, log)
	admin := server.NewAdminHandler(identity, store, hist)
	srv := server.New(cfg.Server, endpoint, admin, auth, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	if cfg.Discovery.Enabled {
		advertiser := discovery.NewAdvertiser(identity, catalog, cfg.Discovery.RetryDelay, log)
		if err := advertiser.Start(); err != nil {
			return err
		}
		defer advertiser.Stop()
	}

	stopPrune := startPruneLoop(store, hist, cfg.Spool, log)
	defer stopPrune()

	log.WithFields(logrus.Fields{
		"printer": identity.Name,
		"uri":     identity.URI(),
		"output":  cfg.Spool.OutputDir,
	}).Info("inkwell started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serverErr:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}

// ensureWritableDir creates the output directory and proves it is writable
// before any job is accepted. A printer that cannot persist jobs refuses to
// start.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".write-probe")
	if err := os.WriteFile(probe, []byte{}, 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

func startPruneLoop(store *spool.Store, hist *history.History, cfg config.SpoolConfig, log *logrus.Logger) func() {
	if cfg.RetentionDays <= 0 {
		return func() {}
	}

	interval := cfg.PruneInterval
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if removed := store.Prune(retention); removed > 0 {
					log.WithField("removed", removed).Debug("pruned finished jobs")
				}
				if hist != nil {
					if _, err := hist.Prune(retention); err != nil {
						log.WithError(err).Warn("history prune failed")
					}
				}
			}
		}
	}()
	return func() { close(stopCh) }
}
