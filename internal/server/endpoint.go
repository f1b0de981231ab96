package server

import (
	"bufio"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/orrn/inkwell/internal/ipp"
	"github.com/orrn/inkwell/internal/printer"
	"github.com/orrn/inkwell/internal/spool"
)

// Submitter hands fully received jobs to the conversion pipeline.
type Submitter interface {
	Submit(jobID int64)
}

// Endpoint serves IPP requests over HTTP. Each connection is handled
// independently by the HTTP layer; the only shared mutable state it touches
// is the job store.
type Endpoint struct {
	identity  printer.Identity
	catalog   *printer.Catalog
	store     *spool.Store
	pipeline  Submitter
	startedAt time.Time
	log       *logrus.Entry
}

func NewEndpoint(identity printer.Identity, catalog *printer.Catalog, store *spool.Store, pipeline Submitter, log *logrus.Logger) *Endpoint {
	return &Endpoint{
		identity:  identity,
		catalog:   catalog,
		store:     store,
		pipeline:  pipeline,
		startedAt: time.Now(),
		log:       log.WithField("component", "ipp"),
	}
}

func (e *Endpoint) Register(r *gin.Engine) {
	r.POST("/", e.HandleIPP)
	r.POST("/"+e.identity.ResourcePath, e.HandleIPP)
}

// HandleIPP decodes the request envelope, dispatches by operation code and
// writes a protocol response. Malformed bodies get client-error-bad-request,
// unknown operations server-error-operation-not-supported; neither crashes
// the endpoint.
func (e *Endpoint) HandleIPP(c *gin.Context) {
	body := bufio.NewReader(c.Request.Body)

	req, err := ipp.Decode(body)
	if err != nil {
		if req == nil {
			req = &ipp.Message{VersionMajor: 1, VersionMinor: 1}
		}
		e.log.WithError(err).Warn("malformed request")
		e.respond(c, e.errorResponse(req, ipp.StatusClientErrorBadRequest, "malformed request encoding"))
		return
	}

	var resp *ipp.Message
	switch req.Code {
	case ipp.OpGetPrinterAttributes:
		resp = e.getPrinterAttributes(req)
	case ipp.OpValidateJob:
		resp = e.validateJob(req)
	case ipp.OpPrintJob:
		resp = e.printJob(req, body)
	case ipp.OpCreateJob:
		resp = e.createJob(req)
	case ipp.OpSendDocument:
		resp = e.sendDocument(req, body)
	case ipp.OpCancelJob:
		resp = e.cancelJob(req)
	case ipp.OpGetJobAttributes:
		resp = e.getJobAttributes(req)
	case ipp.OpGetJobs:
		resp = e.getJobs(req)
	default:
		e.log.WithField("operation", req.Code).Warn("unsupported operation")
		resp = e.errorResponse(req, ipp.StatusServerErrorOpNotSupported, "operation not supported")
	}

	if resp == nil {
		// client went away mid-stream; nothing left to answer
		return
	}
	e.respond(c, resp)
}

func (e *Endpoint) respond(c *gin.Context, resp *ipp.Message) {
	data, err := ipp.Encode(resp)
	if err != nil {
		e.log.WithError(err).Error("failed to encode response")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/ipp", data)
}

func (e *Endpoint) errorResponse(req *ipp.Message, status uint16, message string) *ipp.Message {
	resp := ipp.NewResponse(req, status)
	op, _ := resp.Group(ipp.TagOperationGroup)
	op.Add(ipp.Attr("status-message", ipp.Text(message)))
	return resp
}

// requestedAttributes returns the names the client asked for, or nil when
// everything should be returned. Group keywords (printer-description,
// job-template, job-description) stay in the map and are resolved against
// each candidate attribute by the caller's include check.
func requestedAttributes(req *ipp.Message) map[string]bool {
	attr, ok := req.OperationAttr("requested-attributes")
	if !ok {
		return nil
	}
	names := make(map[string]bool, len(attr.Values))
	for _, v := range attr.Values {
		if v.Str == "all" {
			return nil
		}
		names[v.Str] = true
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

// jobTemplateBases are the job-template attributes the catalog models. Their
// -default and -supported pairs belong to the job-template group keyword;
// everything else in the printer group is printer-description.
var jobTemplateBases = []string{
	"copies",
	"media",
	"sides",
	"printer-resolution",
}

func isJobTemplateAttribute(name string) bool {
	for _, base := range jobTemplateBases {
		if name == base+"-default" || name == base+"-supported" {
			return true
		}
	}
	return false
}

func (e *Endpoint) getPrinterAttributes(req *ipp.Message) *ipp.Message {
	requested := requestedAttributes(req)

	resp := ipp.NewResponse(req, ipp.StatusOK)
	g := resp.AddGroup(ipp.TagPrinterGroup)

	include := func(name string) bool {
		if requested == nil || requested[name] {
			return true
		}
		if isJobTemplateAttribute(name) {
			return requested["job-template"]
		}
		return requested["printer-description"]
	}

	for _, name := range e.catalog.Names() {
		if !include(name) {
			continue
		}
		values, _ := e.catalog.Get(name)
		g.Add(ipp.Attr(name, values...))
	}

	// live status, derived from the store on every query
	if include("printer-state") {
		g.Add(ipp.Attr("printer-state", ipp.Enum(int32(e.store.PrinterState()))))
	}
	if include("printer-state-reasons") {
		g.Add(ipp.Attr("printer-state-reasons", ipp.Keyword("none")))
	}
	if include("queued-job-count") {
		g.Add(ipp.Attr("queued-job-count", ipp.Integer(int32(e.store.QueuedCount()))))
	}
	if include("printer-up-time") {
		g.Add(ipp.Attr("printer-up-time", ipp.Integer(int32(time.Since(e.startedAt).Seconds())+1)))
	}

	return resp
}

// validateJob checks the declared format and every job-template attribute
// against the catalog. Attributes outside the capability set are rejected
// outright and echoed back in an unsupported-attributes group.
func (e *Endpoint) validateJob(req *ipp.Message) *ipp.Message {
	if attr, ok := req.OperationAttr("document-format"); ok && len(attr.Values) > 0 {
		if !e.catalog.SupportsFormat(attr.Values[0].Str) {
			resp := e.errorResponse(req, ipp.StatusClientErrorFormatNotSupported, "document format not supported")
			u := resp.AddGroup(ipp.TagUnsupportedGroup)
			u.Add(ipp.Attr("document-format", attr.Values[0]))
			return resp
		}
	}

	var unsupported []ipp.Attribute
	if jobGroup, ok := req.Group(ipp.TagJobGroup); ok {
		for _, attr := range jobGroup.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			if !e.catalog.SupportsJobAttribute(attr.Name, attr.Values[0]) {
				unsupported = append(unsupported, attr)
			}
		}
	}

	if len(unsupported) > 0 {
		resp := e.errorResponse(req, ipp.StatusClientErrorAttributesNotSupported, "attributes or values not supported")
		u := resp.AddGroup(ipp.TagUnsupportedGroup)
		for _, attr := range unsupported {
			u.Add(attr)
		}
		return resp
	}

	return ipp.NewResponse(req, ipp.StatusOK)
}

// jobSubmission pulls the client-declared (untrusted) job metadata from the
// operation attributes.
func (e *Endpoint) jobSubmission(req *ipp.Message) (name, user, format string) {
	name = "untitled"
	user = "anonymous"
	format = e.catalog.DefaultFormat()

	if attr, ok := req.OperationAttr("job-name"); ok && len(attr.Values) > 0 && attr.Values[0].Str != "" {
		name = attr.Values[0].Str
	}
	if attr, ok := req.OperationAttr("requesting-user-name"); ok && len(attr.Values) > 0 && attr.Values[0].Str != "" {
		user = attr.Values[0].Str
	}
	if attr, ok := req.OperationAttr("document-format"); ok && len(attr.Values) > 0 && attr.Values[0].Str != "" {
		format = attr.Values[0].Str
	}
	return name, user, format
}

func (e *Endpoint) printJob(req *ipp.Message, body io.Reader) *ipp.Message {
	name, user, format := e.jobSubmission(req)

	if !e.catalog.SupportsFormat(format) {
		resp := e.errorResponse(req, ipp.StatusClientErrorFormatNotSupported, "document format not supported")
		u := resp.AddGroup(ipp.TagUnsupportedGroup)
		u.Add(ipp.Attr("document-format", ipp.MimeMediaType(format)))
		return resp
	}

	job := e.store.Create(name, user, format)
	e.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"name":   name,
		"user":   user,
		"format": format,
	}).Info("print job accepted")

	n, err := e.store.AppendPayload(job.ID, body)
	if err != nil {
		if abortErr := e.store.Abort(job.ID, "client disconnected mid-stream"); abortErr != nil {
			e.log.WithError(abortErr).WithField("job_id", job.ID).Warn("abort failed")
		}
		e.log.WithField("job_id", job.ID).Warn("payload stream terminated early")
		return nil
	}
	if n == 0 {
		_ = e.store.Abort(job.ID, "empty document payload")
		return e.errorResponse(req, ipp.StatusClientErrorBadRequest, "empty document payload")
	}

	if err := e.store.Transition(job.ID, spool.StateProcessing, ""); err != nil {
		return e.errorResponse(req, ipp.StatusServerErrorInternal, err.Error())
	}
	e.pipeline.Submit(job.ID)

	return e.jobResponse(req, job.ID, spool.StateProcessing)
}

func (e *Endpoint) createJob(req *ipp.Message) *ipp.Message {
	name, user, format := e.jobSubmission(req)

	if !e.catalog.SupportsFormat(format) {
		resp := e.errorResponse(req, ipp.StatusClientErrorFormatNotSupported, "document format not supported")
		u := resp.AddGroup(ipp.TagUnsupportedGroup)
		u.Add(ipp.Attr("document-format", ipp.MimeMediaType(format)))
		return resp
	}

	job := e.store.Create(name, user, format)
	e.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"name":   name,
		"user":   user,
	}).Info("job created, awaiting documents")

	return e.jobResponse(req, job.ID, spool.StatePending)
}

func (e *Endpoint) sendDocument(req *ipp.Message, body io.Reader) *ipp.Message {
	jobID, ok := jobIDAttr(req)
	if !ok {
		return e.errorResponse(req, ipp.StatusClientErrorBadRequest, "job-id required")
	}

	job, found := e.store.Get(jobID)
	if !found {
		return e.errorResponse(req, ipp.StatusClientErrorNotFound, "job not found")
	}
	if job.State != spool.StatePending {
		return e.errorResponse(req, ipp.StatusClientErrorNotPossible, "job no longer accepts documents")
	}

	lastDocument := false
	if attr, ok := req.OperationAttr("last-document"); ok && len(attr.Values) > 0 {
		lastDocument = attr.Values[0].Bool
	}

	if _, err := e.store.AppendPayload(jobID, body); err != nil {
		if abortErr := e.store.Abort(jobID, "client disconnected mid-stream"); abortErr != nil {
			e.log.WithError(abortErr).WithField("job_id", jobID).Warn("abort failed")
		}
		e.log.WithField("job_id", jobID).Warn("payload stream terminated early")
		return nil
	}

	state := spool.StatePending
	if lastDocument {
		if err := e.store.Transition(jobID, spool.StateProcessing, ""); err != nil {
			return e.errorResponse(req, ipp.StatusServerErrorInternal, err.Error())
		}
		e.pipeline.Submit(jobID)
		state = spool.StateProcessing
	}

	return e.jobResponse(req, jobID, state)
}

func (e *Endpoint) cancelJob(req *ipp.Message) *ipp.Message {
	jobID, ok := jobIDAttr(req)
	if !ok {
		return e.errorResponse(req, ipp.StatusClientErrorBadRequest, "job-id required")
	}

	job, found := e.store.Get(jobID)
	if !found {
		return e.errorResponse(req, ipp.StatusClientErrorNotFound, "job not found")
	}
	if job.State.Terminal() {
		return e.errorResponse(req, ipp.StatusClientErrorNotPossible, "job already in a terminal state")
	}

	if err := e.store.Transition(jobID, spool.StateCanceled, ""); err != nil {
		return e.errorResponse(req, ipp.StatusClientErrorNotPossible, err.Error())
	}
	e.log.WithField("job_id", jobID).Info("job canceled")

	return ipp.NewResponse(req, ipp.StatusOK)
}

func (e *Endpoint) getJobAttributes(req *ipp.Message) *ipp.Message {
	jobID, ok := jobIDAttr(req)
	if !ok {
		return e.errorResponse(req, ipp.StatusClientErrorBadRequest, "job-id required")
	}

	job, found := e.store.Get(jobID)
	if !found {
		return e.errorResponse(req, ipp.StatusClientErrorNotFound, "job not found")
	}

	resp := ipp.NewResponse(req, ipp.StatusOK)
	g := resp.AddGroup(ipp.TagJobGroup)
	e.fillJobAttributes(g, job, requestedAttributes(req))
	return resp
}

func (e *Endpoint) getJobs(req *ipp.Message) *ipp.Message {
	completedOnly := false
	if attr, ok := req.OperationAttr("which-jobs"); ok && len(attr.Values) > 0 {
		completedOnly = attr.Values[0].Str == "completed"
	}

	limit := 0
	if attr, ok := req.OperationAttr("limit"); ok && len(attr.Values) > 0 {
		limit = int(attr.Values[0].Int)
	}

	requested := requestedAttributes(req)
	resp := ipp.NewResponse(req, ipp.StatusOK)

	count := 0
	for _, job := range e.store.List() {
		if job.State.Terminal() != completedOnly {
			continue
		}
		if limit > 0 && count >= limit {
			break
		}
		g := resp.AddGroup(ipp.TagJobGroup)
		e.fillJobAttributes(g, job, requested)
		count++
	}

	return resp
}

func (e *Endpoint) fillJobAttributes(g *ipp.Group, job spool.Job, requested map[string]bool) {
	// every job attribute served here is a description/status attribute
	include := func(name string) bool {
		return requested == nil || requested[name] || requested["job-description"]
	}

	if include("job-id") {
		g.Add(ipp.Attr("job-id", ipp.Integer(int32(job.ID))))
	}
	if include("job-uri") {
		g.Add(ipp.Attr("job-uri", ipp.URI(e.identity.JobURI(job.ID))))
	}
	if include("job-printer-uri") {
		g.Add(ipp.Attr("job-printer-uri", ipp.URI(e.identity.URI())))
	}
	if include("job-state") {
		g.Add(ipp.Attr("job-state", ipp.Enum(int32(job.State))))
	}
	if include("job-state-reasons") {
		g.Add(ipp.Attr("job-state-reasons", ipp.Keyword(job.State.Reason())))
	}
	if include("job-state-message") && job.ErrorDetail != "" {
		g.Add(ipp.Attr("job-state-message", ipp.Text(job.ErrorDetail)))
	}
	if include("job-name") {
		g.Add(ipp.Attr("job-name", ipp.Name(job.Name)))
	}
	if include("job-originating-user-name") {
		g.Add(ipp.Attr("job-originating-user-name", ipp.Name(job.User)))
	}
	if include("document-format") {
		g.Add(ipp.Attr("document-format", ipp.MimeMediaType(job.Format)))
	}
	if include("job-k-octets") {
		g.Add(ipp.Attr("job-k-octets", ipp.Integer(int32((job.Size+1023)/1024))))
	}
	if include("time-at-creation") {
		g.Add(ipp.Attr("time-at-creation", ipp.Integer(int32(job.CreatedAt.Unix()))))
	}
	if include("time-at-completed") && job.CompletedAt != nil {
		g.Add(ipp.Attr("time-at-completed", ipp.Integer(int32(job.CompletedAt.Unix()))))
	}
}

func (e *Endpoint) jobResponse(req *ipp.Message, jobID int64, state spool.State) *ipp.Message {
	resp := ipp.NewResponse(req, ipp.StatusOK)
	g := resp.AddGroup(ipp.TagJobGroup)
	g.Add(ipp.Attr("job-id", ipp.Integer(int32(jobID))))
	g.Add(ipp.Attr("job-uri", ipp.URI(e.identity.JobURI(jobID))))
	g.Add(ipp.Attr("job-state", ipp.Enum(int32(state))))
	g.Add(ipp.Attr("job-state-reasons", ipp.Keyword(state.Reason())))
	return resp
}

func jobIDAttr(req *ipp.Message) (int64, bool) {
	attr, ok := req.OperationAttr("job-id")
	if !ok || len(attr.Values) == 0 || attr.Values[0].Tag != ipp.TagInteger {
		return 0, false
	}
	return int64(attr.Values[0].Int), true
}
