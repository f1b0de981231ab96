package spool

import "time"

// State is an IPP job-state enum value.
type State int32

const (
	StatePending    State = 3
	StateProcessing State = 5
	StateCanceled   State = 7
	StateAborted    State = 8
	StateCompleted  State = 9
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateCanceled:
		return "canceled"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transition.
func (s State) Terminal() bool {
	return s == StateCanceled || s == StateAborted || s == StateCompleted
}

// Reason is the job-state-reasons keyword reported for the state.
func (s State) Reason() string {
	switch s {
	case StateCompleted:
		return "job-completed-successfully"
	case StateCanceled:
		return "job-canceled-by-user"
	case StateAborted:
		return "aborted-by-system"
	default:
		return "none"
	}
}

// stateRank orders states for the monotonic-transition check. Terminal
// states share a rank: exactly one of them may be reached, once.
var stateRank = map[State]int{
	StatePending:    0,
	StateProcessing: 1,
	StateCanceled:   2,
	StateAborted:    2,
	StateCompleted:  2,
}

// Job is one print submission. Store methods return copies; the store owns
// the only mutable record.
type Job struct {
	ID          int64
	Name        string
	User        string
	Format      string
	Size        int64
	State       State
	ErrorDetail string
	OutputPath  string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// PrinterState is the IPP printer-state enum, derived from live jobs.
type PrinterState int32

const (
	PrinterIdle       PrinterState = 3
	PrinterProcessing PrinterState = 4
	PrinterStopped    PrinterState = 5
)

func (p PrinterState) String() string {
	switch p {
	case PrinterIdle:
		return "idle"
	case PrinterProcessing:
		return "processing"
	case PrinterStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
