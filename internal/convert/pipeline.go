package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/inkwell/internal/config"
	"github.com/orrn/inkwell/internal/spool"
)

var (
	ErrQueueFull       = errors.New("conversion queue full")
	ErrConverterFailed = errors.New("converter failed")
)

var extensions = map[string]string{
	"application/pdf":          "pdf",
	"application/postscript":   "ps",
	"application/octet-stream": "bin",
}

// Pipeline converts finished job payloads into output artifacts. Jobs are
// handed over through a buffered channel and processed by a small worker
// pool, so a slow or hung converter never blocks request handling.
type Pipeline struct {
	store        *spool.Store
	outputDir    string
	targetFormat string
	gsPath       string
	timeout      time.Duration
	workers      int
	jobCh        chan int64
	stopCh       chan struct{}
	wg           sync.WaitGroup
	log          *logrus.Entry
}

func NewPipeline(store *spool.Store, outputDir, targetFormat string, cfg config.ConvertConfig, log *logrus.Logger) *Pipeline {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.GhostscriptPath == "" {
		cfg.GhostscriptPath = "gs"
	}

	return &Pipeline{
		store:        store,
		outputDir:    outputDir,
		targetFormat: targetFormat,
		gsPath:       cfg.GhostscriptPath,
		timeout:      cfg.Timeout,
		workers:      cfg.WorkerCount,
		jobCh:        make(chan int64, cfg.QueueSize),
		stopCh:       make(chan struct{}),
		log:          log.WithField("component", "convert"),
	}
}

func (p *Pipeline) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pipeline) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Submit hands a processing job to the pipeline. Non-blocking: if the queue
// is saturated the job is aborted rather than stalling the endpoint.
func (p *Pipeline) Submit(jobID int64) {
	select {
	case p.jobCh <- jobID:
	default:
		p.log.WithField("job_id", jobID).Error("conversion queue full, aborting job")
		if err := p.store.Abort(jobID, ErrQueueFull.Error()); err != nil {
			p.log.WithError(err).WithField("job_id", jobID).Warn("abort failed")
		}
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case jobID := <-p.jobCh:
			p.process(jobID)
		}
	}
}

// process converts one job and lands it in completed or aborted. Failure
// keeps the detail on the job; it never takes the process down.
func (p *Pipeline) process(jobID int64) {
	job, ok := p.store.Get(jobID)
	if !ok {
		p.log.WithField("job_id", jobID).Warn("job vanished before conversion")
		return
	}
	if job.State != spool.StateProcessing {
		// canceled between handoff and pickup
		return
	}

	payload, err := p.store.TakePayload(jobID)
	if err != nil {
		p.fail(jobID, fmt.Sprintf("payload unavailable: %v", err))
		return
	}

	outputPath, err := p.convert(job, payload)
	if err != nil {
		p.fail(jobID, err.Error())
		return
	}

	if err := p.store.Complete(jobID, outputPath); err != nil {
		// lost the race with a cancel: drop the artifact, the terminal
		// state must win
		os.Remove(outputPath)
		p.log.WithError(err).WithField("job_id", jobID).Warn("completion rejected")
		return
	}

	p.log.WithFields(logrus.Fields{
		"job_id": jobID,
		"output": outputPath,
		"bytes":  len(payload),
	}).Info("job written")
}

func (p *Pipeline) fail(jobID int64, detail string) {
	p.log.WithFields(logrus.Fields{
		"job_id": jobID,
		"error":  detail,
	}).Error("conversion failed")
	if err := p.store.Abort(jobID, detail); err != nil {
		p.log.WithError(err).WithField("job_id", jobID).Warn("abort failed")
	}
}

// convert writes the final artifact and returns its path. The write goes
// through a temp file and rename, so no partial artifact ever sits at the
// output path.
func (p *Pipeline) convert(job spool.Job, payload []byte) (string, error) {
	targetMime := p.targetMime(job.Format)
	outputPath := filepath.Join(p.outputDir, fmt.Sprintf("job-%d.%s", job.ID, extensionFor(targetMime)))

	if job.Format == targetMime {
		if err := writeAtomic(outputPath, payload); err != nil {
			return "", fmt.Errorf("failed to write artifact: %w", err)
		}
		return outputPath, nil
	}

	inputPath := filepath.Join(p.outputDir, fmt.Sprintf(".job-%d.%s", job.ID, extensionFor(job.Format)))
	if err := os.WriteFile(inputPath, payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to stage input: %w", err)
	}
	defer os.Remove(inputPath)

	tmpOutput := outputPath + ".tmp"
	defer os.Remove(tmpOutput)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.gsPath,
		"-dSAFER", "-dBATCH", "-dNOPAUSE", "-dQUIET",
		"-sDEVICE=pdfwrite",
		"-sOutputFile="+tmpOutput,
		inputPath,
	)
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: timed out after %s", ErrConverterFailed, p.timeout)
	}
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("%w: %s", ErrConverterFailed, detail)
	}

	if err := os.Rename(tmpOutput, outputPath); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return outputPath, nil
}

// targetMime resolves the pipeline's output format for a job. In raw mode
// every job passes through unchanged.
func (p *Pipeline) targetMime(declared string) string {
	if p.targetFormat == "raw" {
		return declared
	}
	return "application/pdf"
}

func extensionFor(mime string) string {
	if ext, ok := extensions[mime]; ok {
		return ext
	}
	return "bin"
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
