package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/inkwell/internal/history"
	"github.com/orrn/inkwell/internal/printer"
	"github.com/orrn/inkwell/internal/spool"
)

type JobResponse struct {
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

type PrinterResponse struct {
	Name       string `json:"name"`
	UUID       string `json:"uuid"`
	URI        string `json:"uri"`
	State      string `json:"state"`
	QueuedJobs int    `json:"queued_jobs"`
}

// AdminHandler is the JSON management surface next to the IPP endpoint:
// read-only views over the live store and the sqlite history.
type AdminHandler struct {
	identity printer.Identity
	store    *spool.Store
	history  *history.History
}

func NewAdminHandler(identity printer.Identity, store *spool.Store, hist *history.History) *AdminHandler {
	return &AdminHandler{
		identity: identity,
		store:    store,
		history:  hist,
	}
}

func (h *AdminHandler) GetPrinter(c *gin.Context) {
	c.JSON(http.StatusOK, PrinterResponse{
		Name:       h.identity.Name,
		UUID:       h.identity.UUID,
		URI:        h.identity.URI(),
		State:      h.store.PrinterState().String(),
		QueuedJobs: h.store.QueuedCount(),
	})
}

func (h *AdminHandler) ListJobs(c *gin.Context) {
	stateFilter := c.Query("state")

	jobs := h.store.List()
	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		if stateFilter != "" && job.State.String() != stateFilter {
			continue
		}
		responses = append(responses, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  responses,
		"count": len(responses),
	})
}

func (h *AdminHandler) GetJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, ok := h.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, jobToResponse(job))
}

func (h *AdminHandler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.history.List(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/printer", h.GetPrinter)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:id", h.GetJob)
	r.GET("/history", h.ListHistory)
}

func jobToResponse(job spool.Job) JobResponse {
	return JobResponse{
		ID:          job.ID,
		Name:        job.Name,
		User:        job.User,
		Format:      job.Format,
		Size:        job.Size,
		State:       job.State.String(),
		ErrorDetail: job.ErrorDetail,
		OutputPath:  job.OutputPath,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}
