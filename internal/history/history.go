package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/orrn/inkwell/internal/spool"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_history (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	user TEXT NOT NULL,
	format TEXT NOT NULL,
	size INTEGER NOT NULL,
	state TEXT NOT NULL,
	error_detail TEXT NOT NULL DEFAULT '',
	output_path TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_job_history_completed ON job_history(completed_at);
`

// Entry is one archived terminal job.
type Entry struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	User        string     `json:"user"`
	Format      string     `json:"format"`
	Size        int64      `json:"size"`
	State       string     `json:"state"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	OutputPath  string     `json:"output_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// History persists terminal jobs to sqlite. The in-memory store stays the
// source of truth for live protocol queries; this archive survives restarts.
type History struct {
	db *sql.DB
}

func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &History{db: db}, nil
}

// Record archives a job that reached a terminal state. Ids are unique per
// process lifetime; re-recording the same id after a restart replaces the
// stale row rather than failing.
func (h *History) Record(job spool.Job) error {
	_, err := h.db.Exec(`
		INSERT OR REPLACE INTO job_history (id, name, user, format, size, state, error_detail, output_path, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Name, job.User, job.Format, job.Size, job.State.String(),
		job.ErrorDetail, job.OutputPath, job.CreatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record job %d: %w", job.ID, err)
	}
	return nil
}

// List returns archived jobs, most recently completed first.
func (h *History) List(limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := h.db.Query(`
		SELECT id, name, user, format, size, state, error_detail, output_path, created_at, completed_at
		FROM job_history
		ORDER BY completed_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var completedAt sql.NullTime
		err := rows.Scan(&e.ID, &e.Name, &e.User, &e.Format, &e.Size,
			&e.State, &e.ErrorDetail, &e.OutputPath, &e.CreatedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Prune deletes entries completed before the cutoff and returns the count.
func (h *History) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := h.db.Exec("DELETE FROM job_history WHERE completed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return result.RowsAffected()
}

func (h *History) Close() error {
	return h.db.Close()
}
