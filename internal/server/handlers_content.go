package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oshitechglobal/creatordeck/internal/models"
	"github.com/oshitechglobal/creatordeck/internal/service"
)

type contentItemRequest struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Stage          string              `json:"stage"`
	Platform       string              `json:"platform"`
	Priority       string              `json:"priority"`
	ScheduledAt    *time.Time          `json:"scheduled_at"`
	Outline        string              `json:"outline"`
	Hook           string              `json:"hook"`
	ValueStatement string              `json:"value_statement"`
	ThumbnailURL   string              `json:"thumbnail_url"`
	VideoURL       string              `json:"video_url"`
	LeadMagnets    []models.LeadMagnet `json:"lead_magnets"`
}

// validate catches input problems before anything hits the network or the
// store; errors are keyed by field for inline display. Calendar-day checks
// run in loc, the tracker's configured timezone.
func (r *contentItemRequest) validate(creating bool, loc *time.Location) map[string]string {
	fieldErrors := make(map[string]string)

	if strings.TrimSpace(r.Title) == "" {
		fieldErrors["title"] = "title is required"
	}
	if r.Stage != "" && !models.ValidStage(models.Stage(r.Stage)) {
		fieldErrors["stage"] = fmt.Sprintf("unknown stage %q", r.Stage)
	}
	if creating && r.ScheduledAt != nil {
		y, m, d := time.Now().In(loc).Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if r.ScheduledAt.Before(today) {
			fieldErrors["scheduled_at"] = "scheduled date must not be in the past"
		}
	}
	for i, magnet := range r.LeadMagnets {
		key := fmt.Sprintf("lead_magnets.%d.url", i)
		if magnet.Name != "" && magnet.URL == "" {
			fieldErrors[key] = "url is required once a name is set"
			continue
		}
		if magnet.URL != "" && !validHTTPURL(magnet.URL) {
			fieldErrors[key] = "malformed url"
		}
	}
	if r.ThumbnailURL != "" && !validHTTPURL(r.ThumbnailURL) {
		fieldErrors["thumbnail_url"] = "malformed url"
	}
	if r.VideoURL != "" && !validHTTPURL(r.VideoURL) {
		fieldErrors["video_url"] = "malformed url"
	}

	return fieldErrors
}

func validHTTPURL(raw string) bool {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

func (s *Server) handleListContent(c *gin.Context) {
	items, err := s.ContentService.List(c.Request.Context(), service.OwnerID(c))
	if err != nil {
		s.Logger.Error("Failed to list content items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load content"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleCreateContent(c *gin.Context) {
	var req contentItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if fieldErrors := req.validate(true, s.ProgressService.Location()); len(fieldErrors) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrors})
		return
	}

	item := &models.ContentItem{
		OwnerID:        service.OwnerID(c),
		Title:          req.Title,
		Description:    req.Description,
		Stage:          models.Stage(req.Stage),
		Platform:       req.Platform,
		Priority:       req.Priority,
		ScheduledAt:    req.ScheduledAt,
		Outline:        req.Outline,
		Hook:           req.Hook,
		ValueStatement: req.ValueStatement,
		ThumbnailURL:   req.ThumbnailURL,
		VideoURL:       req.VideoURL,
		LeadMagnets:    req.LeadMagnets,
	}

	item, err := s.ContentService.Create(c.Request.Context(), item)
	if err != nil {
		s.Logger.Error("Failed to create content item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create content"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

func (s *Server) handleGetContent(c *gin.Context) {
	item, err := s.ContentService.Get(c.Request.Context(), service.OwnerID(c), c.Param("id"))
	if err != nil {
		s.notFoundOrError(c, err, "Failed to load content")
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (s *Server) handleUpdateContent(c *gin.Context) {
	var req contentItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if fieldErrors := req.validate(false, s.ProgressService.Location()); len(fieldErrors) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrors})
		return
	}

	patch := map[string]interface{}{
		"title":           req.Title,
		"description":     req.Description,
		"platform":        req.Platform,
		"priority":        req.Priority,
		"scheduled_at":    req.ScheduledAt,
		"outline":         req.Outline,
		"hook":            req.Hook,
		"value_statement": req.ValueStatement,
		"thumbnail_url":   req.ThumbnailURL,
		"video_url":       req.VideoURL,
		"lead_magnets":    datatypes.NewJSONSlice(req.LeadMagnets),
	}
	if req.Stage != "" {
		patch["stage"] = models.Stage(req.Stage)
	}

	item, err := s.ContentService.Update(c.Request.Context(), service.OwnerID(c), c.Param("id"), patch)
	if err != nil {
		s.notFoundOrError(c, err, "Failed to update content")
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (s *Server) handleDeleteContent(c *gin.Context) {
	err := s.ContentService.Delete(c.Request.Context(), service.OwnerID(c), c.Param("id"))
	if err != nil {
		s.notFoundOrError(c, err, "Failed to delete content")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

type moveRequest struct {
	Stage    string  `json:"stage" binding:"required"`
	Position float64 `json:"position"`
}

func (s *Server) handleMoveContent(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !models.ValidStage(models.Stage(req.Stage)) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"stage": fmt.Sprintf("unknown stage %q", req.Stage)}})
		return
	}

	item, moved, err := s.ContentService.Move(c.Request.Context(), service.OwnerID(c), c.Param("id"), models.Stage(req.Stage), req.Position)
	if err != nil {
		s.notFoundOrError(c, err, "Failed to move content")
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item, "moved": moved})
}

// advance accepts an optional field patch saved together with the stage
// step; only the whitelisted editable fields are applied.
var advancePatchFields = map[string]bool{
	"title":           true,
	"description":     true,
	"outline":         true,
	"hook":            true,
	"value_statement": true,
	"thumbnail_url":   true,
	"video_url":       true,
}

func (s *Server) handleAdvanceContent(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	patch := make(map[string]interface{})
	for key, value := range body {
		if advancePatchFields[key] {
			patch[key] = value
		}
	}

	item, err := s.ContentService.Advance(c.Request.Context(), service.OwnerID(c), c.Param("id"), patch)
	if err != nil {
		s.notFoundOrError(c, err, "Failed to advance content")
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (s *Server) handleStageCounts(c *gin.Context) {
	counts, err := s.ContentService.StageCounts(c.Request.Context(), service.OwnerID(c))
	if err != nil {
		s.Logger.Error("Failed to count stages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stage counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stages": counts})
}

func (s *Server) notFoundOrError(c *gin.Context, err error, banner string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	s.Logger.Error(banner, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": banner})
}
