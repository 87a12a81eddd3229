package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"transcriptiond/internal/config"
	"transcriptiond/internal/domain"
	"transcriptiond/internal/jobs"
	"transcriptiond/internal/transcribe"
)

func (h *handlers) health(c *gin.Context) {
	if err := h.Jobs.Ping(c.Request.Context()); err != nil {
		h.Logger.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "ok"})
}

// submitJobs accepts one or more files under "file" or "files". Files are
// queued in order; when one fails, the error body also lists the jobs
// queued before it.
func (h *handlers) submitJobs(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respond(c, http.StatusBadRequest, CodeInvalidInput, "send media as multipart/form-data in the \"file\" field")
		return
	}
	defer form.RemoveAll()

	var files []*multipart.FileHeader
	for _, key := range []string{"file", "files", "files[]"} {
		files = append(files, form.File[key]...)
	}
	if len(files) == 0 {
		respond(c, http.StatusBadRequest, CodeInvalidInput, "no file uploaded")
		return
	}

	queued := make([]domain.Job, 0, len(files))
	for _, fh := range files {
		job, err := h.submitOne(c, fh)
		if err != nil {
			status, body := h.errorBody(c, err)
			if len(queued) > 0 {
				body["jobs"] = queued
			}
			c.AbortWithStatusJSON(status, body)
			return
		}
		queued = append(queued, job)
	}
	c.JSON(http.StatusCreated, gin.H{"jobs": queued})
}

func (h *handlers) submitOne(c *gin.Context, fh *multipart.FileHeader) (domain.Job, error) {
	src, err := fh.Open()
	if err != nil {
		return domain.Job{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()
	return h.Intake.Submit(c.Request.Context(), fh.Filename, src)
}

func (h *handlers) listJobs(c *gin.Context) {
	all, err := h.Jobs.List(c.Request.Context())
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	status := domain.JobStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		respond(c, http.StatusBadRequest, CodeInvalidInput, fmt.Sprintf("unknown status %q", status))
		return
	}
	out := make([]domain.Job, 0, len(all))
	for _, job := range all {
		if status == "" || job.Status == status {
			out = append(out, job)
		}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

func (h *handlers) getJob(c *gin.Context) {
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *handlers) getResult(c *gin.Context) {
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	if !job.Status.Terminal() {
		respond(c, http.StatusConflict, CodeNoResult, fmt.Sprintf("job is still %s", job.Status))
		return
	}
	if job.Status != domain.JobStatusDone {
		respond(c, http.StatusConflict, CodeNoResult, "job failed without a result")
		return
	}
	path, err := transcribe.FindResult(h.ResultsDir, job.ID)
	if errors.Is(err, transcribe.ErrNoResult) {
		respond(c, http.StatusNotFound, CodeNoResult, "result file not found")
		return
	}
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.FileAttachment(path, transcriptName(job))
}

// transcriptName is the download name: the media name with .txt.
func transcriptName(job domain.Job) string {
	return strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename)) + ".txt"
}

func (h *handlers) exportJobs(c *gin.Context) {
	data, err := h.Export.JobsXLSX(c.Request.Context())
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	name := "jobs-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *handlers) events(c *gin.Context) {
	var since int64
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			respond(c, http.StatusBadRequest, CodeInvalidInput, "since must be a non-negative integer")
			return
		}
		since = v
	}
	events := h.Events.Since(since)
	if events == nil {
		events = []jobs.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "lastSeq": h.Events.LastSeq()})
}

func (h *handlers) worker(c *gin.Context) {
	body := gin.H{"running": h.Worker.Running(), "currentJob": nil}
	if job, ok := h.Worker.Current(); ok {
		body["currentJob"] = job
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) diagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.Diagnostics(c.Request.Context()))
}

func (h *handlers) getSettings(c *gin.Context) {
	snap, err := h.Settings.Snapshot()
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) putSettings(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		respond(c, http.StatusBadRequest, CodeInvalidInput, "cannot read request body")
		return
	}
	patch, err := config.ValidatePatch(body)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	if _, err := h.Settings.Update(patch); err != nil {
		h.respondWithError(c, err)
		return
	}
	h.getSettings(c)
}
