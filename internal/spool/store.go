package spool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrBadTransition = errors.New("invalid job state transition")
)

// Store is the process-wide job registry. It is the only mutable state
// shared between the protocol endpoint and the conversion pipeline; all
// access goes through its methods.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	jobs     map[int64]*Job
	order    []int64
	payloads map[int64]*payload
	stopped  bool
	notify   func(Job)
}

// payload carries a job's document bytes with its own lock, so concurrent
// streams into the same job serialize without holding the store lock for
// the duration of a slow client's upload.
type payload struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func NewStore() *Store {
	return &Store{
		jobs:     make(map[int64]*Job),
		payloads: make(map[int64]*payload),
	}
}

// SetNotifier registers a callback invoked (on its own goroutine) whenever a
// job reaches a terminal state. Must be called before serving traffic.
func (s *Store) SetNotifier(fn func(Job)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Create inserts a new pending job. ID assignment and insertion are a single
// atomic step, so ids are strictly increasing and never reused even under
// concurrent submissions.
func (s *Store) Create(name, user, format string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	job := &Job{
		ID:        s.nextID,
		Name:      name,
		User:      user,
		Format:    format,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.payloads[job.ID] = &payload{}
	return *job
}

// Get returns a copy of the job.
func (s *Store) Get(id int64) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns copies of all jobs in creation order.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	return out
}

// Transition advances a job's state. Backward or repeated-terminal
// transitions return ErrBadTransition without mutating the record.
func (s *Store) Transition(id int64, to State, detail string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if stateRank[to] <= stateRank[job.State] {
		from := job.State
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	job.State = to
	if detail != "" {
		job.ErrorDetail = detail
	}
	if to.Terminal() {
		now := time.Now()
		job.CompletedAt = &now
		delete(s.payloads, id)
	}
	snapshot := *job
	notify := s.notify
	s.mu.Unlock()

	if to.Terminal() && notify != nil {
		go notify(snapshot)
	}
	return nil
}

// Complete marks a job completed and records its output artifact path
// atomically with the transition.
func (s *Store) Complete(id int64, outputPath string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if stateRank[StateCompleted] <= stateRank[job.State] {
		from := job.State
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, StateCompleted)
	}
	job.State = StateCompleted
	job.OutputPath = outputPath
	now := time.Now()
	job.CompletedAt = &now
	delete(s.payloads, id)
	snapshot := *job
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		go notify(snapshot)
	}
	return nil
}

// Abort marks a job aborted with an error detail.
func (s *Store) Abort(id int64, detail string) error {
	return s.Transition(id, StateAborted, detail)
}

// AppendPayload streams document bytes from r into the job's buffer and
// records the accumulated size. Returns the byte count read and any read
// error (a client disconnect surfaces here). Concurrent appends to the same
// job serialize on the payload's own lock; the copy never holds the store
// lock, so a slow upload cannot stall unrelated jobs.
func (s *Store) AppendPayload(id int64, r io.Reader) (int64, error) {
	s.mu.Lock()
	p, ok := s.payloads[id]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	s.mu.Unlock()

	p.mu.Lock()
	n, err := io.Copy(&p.buf, r)
	p.mu.Unlock()

	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		job.Size += n
	}
	s.mu.Unlock()
	return n, err
}

// TakePayload removes and returns the accumulated payload for a job. Waits
// for any in-flight append to finish before reading the bytes.
func (s *Store) TakePayload(id int64) ([]byte, error) {
	s.mu.Lock()
	p, ok := s.payloads[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	delete(s.payloads, id)
	s.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Bytes(), nil
}

// SetStopped toggles the operator stop override.
func (s *Store) SetStopped(stopped bool) {
	s.mu.Lock()
	s.stopped = stopped
	s.mu.Unlock()
}

// PrinterState derives the device state from the current job set: a query,
// not a separately maintained global.
func (s *Store) PrinterState() PrinterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return PrinterStopped
	}
	for _, job := range s.jobs {
		if job.State == StateProcessing {
			return PrinterProcessing
		}
	}
	return PrinterIdle
}

// QueuedCount is the number of jobs not yet in a terminal state.
func (s *Store) QueuedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, job := range s.jobs {
		if !job.State.Terminal() {
			count++
		}
	}
	return count
}

// Prune drops terminal jobs completed before the retention cutoff and
// returns how many were removed.
func (s *Store) Prune(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if job.State.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.payloads, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}
