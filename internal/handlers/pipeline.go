package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"realty-aggregator/internal/jobqueue"
	"realty-aggregator/internal/pipeline"
)

// PipelineHandler exposes pipeline control and scrape queue endpoints.
type PipelineHandler struct {
	orchestrator *pipeline.Orchestrator
	manager      *jobqueue.Manager
	sources      []string
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(orch *pipeline.Orchestrator, manager *jobqueue.Manager, sources []string) *PipelineHandler {
	return &PipelineHandler{
		orchestrator: orch,
		manager:      manager,
		sources:      sources,
	}
}

// GetStatus returns the current pipeline state with per-stage details
func (h *PipelineHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Status())
}

// StartPipeline triggers a full pipeline run
func (h *PipelineHandler) StartPipeline(c *gin.Context) {
	if err := h.orchestrator.Start(); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// StopPipeline aborts the current run
func (h *PipelineHandler) StopPipeline(c *gin.Context) {
	h.orchestrator.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

// PausePipeline holds the run before its next stage transition
func (h *PipelineHandler) PausePipeline(c *gin.Context) {
	if err := h.orchestrator.Pause(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

// ResumePipeline continues a paused run
func (h *PipelineHandler) ResumePipeline(c *gin.Context) {
	if err := h.orchestrator.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// EnqueueJob creates one scrape job for the requested source config
func (h *PipelineHandler) EnqueueJob(c *gin.Context) {
	var req struct {
		Config string `json:"config" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.manager.Enqueue(c.Request.Context(), req.Config)
	if err != nil {
		if errors.Is(err, jobqueue.ErrScrapingDisabled) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

// EnqueueAllJobs creates one scrape job per configured source
func (h *PipelineHandler) EnqueueAllJobs(c *gin.Context) {
	jobs, err := h.manager.EnqueueAll(c.Request.Context(), h.sources)
	if err != nil {
		if errors.Is(err, jobqueue.ErrScrapingDisabled) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"jobs": jobs})
}

// ListJobs returns all known scrape jobs, newest first
func (h *PipelineHandler) ListJobs(c *gin.Context) {
	jobs, err := h.manager.Jobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// GetJob returns one scrape job record
func (h *PipelineHandler) GetJob(c *gin.Context) {
	job, err := h.manager.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobqueue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetJobLog returns the most recent log lines for a job
func (h *PipelineHandler) GetJobLog(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	lines, err := h.manager.Log(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, jobqueue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

// StopJob requests cancellation of one job
func (h *PipelineHandler) StopJob(c *gin.Context) {
	job, err := h.manager.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobqueue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// RemoveJob deletes a terminal job record and its log
func (h *PipelineHandler) RemoveJob(c *gin.Context) {
	err := h.manager.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobqueue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("id")})
}

// StopAllJobs requests cancellation of every non-terminal job
func (h *PipelineHandler) StopAllJobs(c *gin.Context) {
	stopped, err := h.manager.StopAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}
