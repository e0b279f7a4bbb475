package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/oshitechglobal/creatordeck/internal/service"
)

// handleEvents streams the authenticated owner's row changes over SSE.
// Clients compare each event's version against the row they hold and
// apply only newer ones.
func (s *Server) handleEvents(c *gin.Context) {
	ownerID := service.OwnerID(c)

	events, cancel := s.Feed.Subscribe(ownerID)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				s.Logger.Warn("Failed to encode change event", zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "event: change\ndata: %s\n\n", data)
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		}
	}
}

func (s *Server) handleDashboard(c *gin.Context) {
	summary, err := s.MonitoringService.Summary(c.Request.Context(), service.OwnerID(c))
	if err != nil {
		s.Logger.Error("Failed to load dashboard summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
