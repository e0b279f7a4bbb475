package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/oshitechglobal/creatordeck/internal/models"
	"github.com/oshitechglobal/creatordeck/internal/service"
)

func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.JobService.List(c.Request.Context(), c.Param("kind"), service.OwnerID(c))
	if err != nil {
		if _, known := s.JobService.Kind(c.Param("kind")); !known {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job kind"})
			return
		}
		s.Logger.Error("Failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

type submitJobRequest struct {
	SourceID string                 `json:"source_id" binding:"required"`
	Payload  map[string]interface{} `json:"payload"`
}

func (s *Server) handleSubmitJob(c *gin.Context) {
	kind := c.Param("kind")
	if _, known := s.JobService.Kind(kind); !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job kind"})
		return
	}

	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"source_id": "source_id is required"}})
		return
	}
	if strings.TrimSpace(req.SourceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"source_id": "source_id is required"}})
		return
	}

	job, duplicate, err := s.JobService.Submit(c.Request.Context(), kind, service.OwnerID(c), req.SourceID, req.Payload)
	if err != nil {
		s.Logger.Error("Failed to submit job",
			zap.String("kind", kind),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit job"})
		return
	}

	if duplicate {
		c.JSON(http.StatusOK, gin.H{
			"job":       job,
			"duplicate": true,
			"message":   "A job for this source already exists",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job": job, "duplicate": false})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.JobService.Get(c.Request.Context(), c.Param("kind"), service.OwnerID(c), c.Param("id"))
	if err != nil {
		s.notFoundOrError(c, err, "Failed to load job")
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	err := s.JobService.Delete(c.Request.Context(), c.Param("kind"), service.OwnerID(c), c.Param("id"))
	if err != nil {
		s.notFoundOrError(c, err, "Failed to delete job")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

type jobResultRequest struct {
	Status string `json:"status" binding:"required"`
	Result string `json:"result"`
}

// handleJobResult is the automation write-back for async kinds. The raw
// body is kept on the row for debugging, mirroring what the row would hold
// had the automation written to the store directly.
func (s *Server) handleJobResult(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	c.Request.Body = io.NopCloser(strings.NewReader(string(raw)))

	var req jobResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"status": "status is required"}})
		return
	}

	status := models.JobStatus(req.Status)
	if status != models.JobCompleted && status != models.JobFailed {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"status": "status must be completed or failed"}})
		return
	}

	job, err := s.JobService.Complete(c.Request.Context(), c.Param("kind"), c.Param("id"), status, req.Result, raw)
	if err != nil {
		s.notFoundOrError(c, err, "Failed to record job result")
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}
