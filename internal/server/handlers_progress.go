package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/oshitechglobal/creatordeck/internal/models"
	"github.com/oshitechglobal/creatordeck/internal/service"
)

func (s *Server) handleListProgress(c *gin.Context) {
	entries, err := s.ProgressService.List(c.Request.Context(), service.OwnerID(c))
	if err != nil {
		s.Logger.Error("Failed to list progress entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type saveProgressRequest struct {
	Date     string                 `json:"date" binding:"required"`
	Platform string                 `json:"platform" binding:"required"`
	Metrics  map[string]interface{} `json:"metrics"`
}

func (r *saveProgressRequest) validate() map[string]string {
	fieldErrors := make(map[string]string)

	if !models.ValidPlatform(r.Platform) {
		fieldErrors["platform"] = fmt.Sprintf("unknown platform %q", r.Platform)
	}
	for key, value := range r.Metrics {
		number, ok := value.(float64)
		if !ok || number < 0 || number != float64(int64(number)) {
			fieldErrors["metrics."+key] = "must be a non-negative integer"
		}
	}

	return fieldErrors
}

func (s *Server) handleSaveProgress(c *gin.Context) {
	var req saveProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	fieldErrors := req.validate()
	// the date string names a calendar day; the service parses it in the
	// tracker's timezone so it lands on the day the creator saw
	date, err := s.ProgressService.ParseDay(req.Date)
	if err != nil {
		fieldErrors["date"] = "date must be YYYY-MM-DD"
	}
	if len(fieldErrors) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrors})
		return
	}

	entry, err := s.ProgressService.SaveEntry(c.Request.Context(), service.OwnerID(c), date, req.Platform, req.Metrics)
	if err != nil {
		s.Logger.Error("Failed to save progress entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (s *Server) handleDeleteProgress(c *gin.Context) {
	err := s.ProgressService.Delete(c.Request.Context(), service.OwnerID(c), c.Param("id"))
	if err != nil {
		s.notFoundOrError(c, err, "Failed to delete progress entry")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

func (s *Server) handleProgressStats(c *gin.Context) {
	stats, err := s.ProgressService.Stats(c.Request.Context(), service.OwnerID(c))
	if err != nil {
		s.Logger.Error("Failed to compute progress stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleProgressGrowth(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"days": "must be between 1 and 365"}})
			return
		}
		days = parsed
	}

	series, err := s.ProgressService.Growth(c.Request.Context(), service.OwnerID(c), days)
	if err != nil {
		s.Logger.Error("Failed to compute growth series", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load growth series"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"series": series})
}
