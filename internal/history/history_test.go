package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/inkwell/internal/spool"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func terminalJob(id int64, state spool.State, completedAt time.Time) spool.Job {
	return spool.Job{
		ID:          id,
		Name:        "report",
		User:        "alice",
		Format:      "application/pdf",
		Size:        2048,
		State:       state,
		OutputPath:  "/var/spool/job-1.pdf",
		CreatedAt:   completedAt.Add(-time.Minute),
		CompletedAt: &completedAt,
	}
}

func TestRecordAndList(t *testing.T) {
	h := openTestHistory(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, h.Record(terminalJob(1, spool.StateCompleted, now.Add(-2*time.Hour))))
	require.NoError(t, h.Record(terminalJob(2, spool.StateCanceled, now.Add(-time.Hour))))
	require.NoError(t, h.Record(terminalJob(3, spool.StateAborted, now)))

	entries, err := h.List(50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// most recently completed first
	assert.Equal(t, int64(3), entries[0].ID)
	assert.Equal(t, int64(2), entries[1].ID)
	assert.Equal(t, int64(1), entries[2].ID)

	assert.Equal(t, "aborted", entries[0].State)
	assert.Equal(t, "canceled", entries[1].State)
	assert.Equal(t, "completed", entries[2].State)
	assert.Equal(t, "report", entries[0].Name)
	assert.Equal(t, "alice", entries[0].User)
	assert.Equal(t, int64(2048), entries[0].Size)
	require.NotNil(t, entries[0].CompletedAt)
}

func TestRecordReplacesSameID(t *testing.T) {
	h := openTestHistory(t)

	now := time.Now().UTC()
	require.NoError(t, h.Record(terminalJob(7, spool.StateCompleted, now)))

	job := terminalJob(7, spool.StateAborted, now)
	job.ErrorDetail = "conversion failed"
	require.NoError(t, h.Record(job))

	entries, err := h.List(50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "aborted", entries[0].State)
	assert.Equal(t, "conversion failed", entries[0].ErrorDetail)
}

func TestListPagination(t *testing.T) {
	h := openTestHistory(t)

	base := time.Now().UTC()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, h.Record(terminalJob(i, spool.StateCompleted, base.Add(time.Duration(i)*time.Minute))))
	}

	page1, err := h.List(2, 0)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, int64(5), page1[0].ID)
	assert.Equal(t, int64(4), page1[1].ID)

	page2, err := h.List(2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, int64(3), page2[0].ID)

	// out-of-range limit falls back to the default page size
	all, err := h.List(1000, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestPruneRemovesOldEntries(t *testing.T) {
	h := openTestHistory(t)

	now := time.Now().UTC()
	require.NoError(t, h.Record(terminalJob(1, spool.StateCompleted, now.Add(-72*time.Hour))))
	require.NoError(t, h.Record(terminalJob(2, spool.StateCompleted, now.Add(-48*time.Hour))))
	require.NoError(t, h.Record(terminalJob(3, spool.StateCompleted, now)))

	pruned, err := h.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	entries, err := h.List(50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ID)
}
