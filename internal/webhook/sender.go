package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/inkwell/internal/config"
	"github.com/orrn/inkwell/internal/spool"
)

const (
	EventJobCompleted = "job_completed"
	EventJobAborted   = "job_aborted"
	EventJobCanceled  = "job_canceled"
)

type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      JobEvent  `json:"data"`
	Signature string    `json:"signature,omitempty"`
}

type JobEvent struct {
	JobID       int64  `json:"job_id"`
	Name        string `json:"name"`
	User        string `json:"user"`
	Format      string `json:"format"`
	Size        int64  `json:"size"`
	State       string `json:"state"`
	ErrorDetail string `json:"error_detail,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
}

type task struct {
	payload *Payload
	attempt int
}

// Sender posts signed job events to a single configured URL. A nil Sender is
// valid and drops everything, so callers need no enabled checks.
type Sender struct {
	url        string
	secret     string
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	queue      chan *task
	stopCh     chan struct{}
	wg         sync.WaitGroup
	log        *logrus.Entry
}

func NewSender(cfg config.WebhookConfig, log *logrus.Logger) *Sender {
	if cfg.URL == "" {
		return nil
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Sender{
		url:    cfg.URL,
		secret: cfg.Secret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		queue:      make(chan *task, 100),
		stopCh:     make(chan struct{}),
		log:        log.WithField("component", "webhook"),
	}
}

func (s *Sender) Start() {
	if s == nil {
		return
	}
	s.wg.Add(1)
	go s.worker()
}

func (s *Sender) Stop() {
	if s == nil {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

// JobEvent enqueues a notification for a job that reached a terminal state.
// Never blocks the caller; a full queue drops the event with a warning.
func (s *Sender) JobEvent(job spool.Job) {
	if s == nil {
		return
	}

	var event string
	switch job.State {
	case spool.StateCompleted:
		event = EventJobCompleted
	case spool.StateAborted:
		event = EventJobAborted
	case spool.StateCanceled:
		event = EventJobCanceled
	default:
		return
	}

	payload := &Payload{
		Event:     event,
		Timestamp: time.Now(),
		Data: JobEvent{
			JobID:       job.ID,
			Name:        job.Name,
			User:        job.User,
			Format:      job.Format,
			Size:        job.Size,
			State:       job.State.String(),
			ErrorDetail: job.ErrorDetail,
			OutputPath:  job.OutputPath,
		},
	}

	select {
	case s.queue <- &task{payload: payload}:
	default:
		s.log.WithField("job_id", job.ID).Warn("webhook queue full, event dropped")
	}
}

func (s *Sender) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.deliver(t.payload); err != nil {
				if t.attempt+1 < s.retryCount {
					t.attempt++
					s.requeueAfter(t, s.retryDelay)
					continue
				}
				s.log.WithError(err).WithField("event", t.payload.Event).
					Error("webhook delivery failed, giving up")
			}
		}
	}
}

func (s *Sender) requeueAfter(t *task, delay time.Duration) {
	time.AfterFunc(delay, func() {
		select {
		case s.queue <- t:
		case <-s.stopCh:
		}
	})
}

func (s *Sender) deliver(payload *Payload) error {
	if s.secret != "" {
		payload.Signature = s.sign(payload)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *Sender) sign(payload *Payload) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	fmt.Fprintf(mac, "%s:%d:%s", payload.Event, payload.Data.JobID, payload.Data.State)
	return hex.EncodeToString(mac.Sum(nil))
}
