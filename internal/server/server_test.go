package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oshitechglobal/creatordeck/internal/config"
	"github.com/oshitechglobal/creatordeck/internal/models"
	"github.com/oshitechglobal/creatordeck/internal/service"
)

func newTestServer(t *testing.T, webhooks config.WebhookConfig) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, service.Migrate(db))

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "CreatorDeck",
		AccountName: "test@example.com",
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		Auth: config.AuthConfig{
			TOTPSecret: key.Secret(),
			SessionTTL: "1h",
		},
		Webhooks: webhooks,
		Progress: config.ProgressConfig{CompletionThreshold: 3, Timezone: "Local"},
		Outbox:   config.OutboxConfig{DispatchInterval: "30s", MaxAttempts: 8},
		Dashboard: config.DashboardConfig{
			RefreshInterval: "5m",
			RetentionDays:   90,
		},
	}

	logger := zap.NewNop()
	feed := service.NewLocalFeed()
	webhookClient := service.NewWebhookClient(logger)
	monitoringService := service.NewMonitoringService(db, logger)
	contentService := service.NewContentService(db, logger, feed)
	progressService := service.NewProgressService(db, logger, feed, &cfg.Progress)
	monitoringService.Bind(contentService, progressService)

	srv := &Server{
		Config:            cfg,
		DB:                db,
		Router:            gin.New(),
		Logger:            logger,
		Feed:              feed,
		AuthService:       service.NewAuthService(logger, &cfg.Auth),
		ContentService:    contentService,
		ProgressService:   progressService,
		JobService:        service.NewJobService(db, logger, webhookClient, feed, monitoringService, &cfg.Webhooks),
		MonitoringService: monitoringService,
		OutboxDispatcher:  service.NewOutboxDispatcher(db, logger, webhookClient, monitoringService, &cfg.Outbox, &cfg.Webhooks),
	}
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

// login runs the TOTP exchange and returns a bearer token for ownerID.
func login(t *testing.T, srv *Server, ownerID string) string {
	t.Helper()

	code, err := totp.GenerateCode(srv.Config.Auth.TOTPSecret, time.Now())
	require.NoError(t, err)

	w := doJSON(srv, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"owner_id": ownerID,
		"code":     code,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func doJSON(srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	return w
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})

	w := doJSON(srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})

	for _, path := range []string{
		"/api/v1/content",
		"/api/v1/progress",
		"/api/v1/jobs/chapters",
		"/api/v1/dashboard",
	} {
		w := doJSON(srv, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestLoginRejectsBadCode(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})

	w := doJSON(srv, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"owner_id": "owner-1",
		"code":     "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthSetupReturnsProvisioningURL(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})

	w := doJSON(srv, http.MethodPost, "/api/v1/auth/setup", "", map[string]interface{}{
		"account_name": "creator@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Secret     string `json:"secret"`
		OtpauthURL string `json:"otpauth_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.OtpauthURL, "otpauth://totp/")
}

func TestContentLifecycle(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	token := login(t, srv, "owner-1")

	w := doJSON(srv, http.MethodPost, "/api/v1/content", token, map[string]interface{}{
		"title":       "How I plan my week",
		"description": "productivity video",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Item models.ContentItem `json:"item"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.StageIdea, created.Item.Stage)
	assert.Equal(t, "owner-1", created.Item.OwnerID)

	w = doJSON(srv, http.MethodPost, "/api/v1/content/"+created.Item.ID+"/move", token, map[string]interface{}{
		"stage":    "outline",
		"position": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var moved struct {
		Item  models.ContentItem `json:"item"`
		Moved bool               `json:"moved"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &moved))
	assert.True(t, moved.Moved)
	assert.Equal(t, models.StageOutline, moved.Item.Stage)

	w = doJSON(srv, http.MethodPost, "/api/v1/content/"+created.Item.ID+"/advance", token, map[string]interface{}{
		"outline": "1. hook 2. steps 3. recap",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var advanced struct {
		Item models.ContentItem `json:"item"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &advanced))
	assert.Equal(t, models.StageWriting, advanced.Item.Stage)
	assert.Equal(t, "1. hook 2. steps 3. recap", advanced.Item.Outline)

	w = doJSON(srv, http.MethodGet, "/api/v1/content/stages", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stages struct {
		Stages map[string]int64 `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stages))
	assert.Len(t, stages.Stages, 7)
	assert.Equal(t, int64(1), stages.Stages["writing"])
}

func TestCreateContentValidation(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	token := login(t, srv, "owner-1")

	w := doJSON(srv, http.MethodPost, "/api/v1/content", token, map[string]interface{}{
		"title": "   ",
		"stage": "archived",
		"lead_magnets": []map[string]string{
			{"name": "Checklist", "url": ""},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "title")
	assert.Contains(t, resp.Errors, "stage")
	assert.Contains(t, resp.Errors, "lead_magnets.0.url")
}

func TestScheduledAtTodayInTrackerTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Honolulu")
	require.NoError(t, err)

	// midnight today in a far-western timezone is a valid scheduling
	// target no matter what the host clock reads
	y, m, d := time.Now().In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	req := contentItemRequest{Title: "island upload", ScheduledAt: &today}
	assert.Empty(t, req.validate(true, loc))

	yesterday := today.AddDate(0, 0, -1)
	req.ScheduledAt = &yesterday
	assert.Contains(t, req.validate(true, loc), "scheduled_at")
}

func TestContentIsOwnerScoped(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	mine := login(t, srv, "owner-1")
	theirs := login(t, srv, "owner-2")

	w := doJSON(srv, http.MethodPost, "/api/v1/content", mine, map[string]interface{}{
		"title": "private draft",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Item models.ContentItem `json:"item"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(srv, http.MethodGet, "/api/v1/content/"+created.Item.ID, theirs, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(srv, http.MethodGet, "/api/v1/content", theirs, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Items []models.ContentItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Empty(t, listed.Items)
}

func TestSaveProgressValidation(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	token := login(t, srv, "owner-1")

	w := doJSON(srv, http.MethodPost, "/api/v1/progress", token, map[string]interface{}{
		"date":     "03/10/2026",
		"platform": "myspace",
		"metrics":  map[string]interface{}{"followers": -5},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "date")
	assert.Contains(t, resp.Errors, "platform")
	assert.Contains(t, resp.Errors, "metrics.followers")
}

func TestSaveProgressAndStats(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	token := login(t, srv, "owner-1")
	today := time.Now().Format("2006-01-02")

	for _, platform := range []string{"youtube", "instagram", "tiktok"} {
		w := doJSON(srv, http.MethodPost, "/api/v1/progress", token, map[string]interface{}{
			"date":     today,
			"platform": platform,
			"metrics":  map[string]interface{}{"followers": 100},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := doJSON(srv, http.MethodGet, "/api/v1/progress/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stats service.ProgressStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Stats.CurrentStreak)
	assert.Equal(t, 1, resp.Stats.CompleteDays)
}

func TestGrowthRejectsBadWindow(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	token := login(t, srv, "owner-1")

	w := doJSON(srv, http.MethodGet, "/api/v1/progress/growth?days=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(srv, http.MethodGet, "/api/v1/progress/growth?days=366", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(srv, http.MethodGet, "/api/v1/progress/growth?days=7", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Series []service.GrowthPoint `json:"series"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Series, 7)
}

func TestSubmitJobAndResultCallback(t *testing.T) {
	automation := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer automation.Close()

	srv := newTestServer(t, config.WebhookConfig{Chapters: automation.URL})
	token := login(t, srv, "owner-1")

	w := doJSON(srv, http.MethodPost, "/api/v1/jobs/chapters", token, map[string]interface{}{
		"source_id": "video-123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var submitted struct {
		Job       models.JobBase `json:"job"`
		Duplicate bool           `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	assert.False(t, submitted.Duplicate)
	assert.Equal(t, models.JobPending, submitted.Job.Status)

	// resubmit is a duplicate with a 200
	w = doJSON(srv, http.MethodPost, "/api/v1/jobs/chapters", token, map[string]interface{}{
		"source_id": "video-123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// the automation reports back without a session
	path := fmt.Sprintf("/api/v1/jobs/chapters/%s/result", submitted.Job.ID)
	w = doJSON(srv, http.MethodPost, path, "", map[string]interface{}{
		"status": "completed",
		"result": "00:00 Intro\n03:20 Setup",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var completed struct {
		Job models.JobBase `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &completed))
	assert.Equal(t, models.JobCompleted, completed.Job.Status)
	assert.Equal(t, "00:00 Intro\n03:20 Setup", completed.Job.Result)
}

func TestSubmitJobUnknownKind(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	token := login(t, srv, "owner-1")

	w := doJSON(srv, http.MethodPost, "/api/v1/jobs/blog-post", token, map[string]interface{}{
		"source_id": "video-123",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitJobRequiresSourceID(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	token := login(t, srv, "owner-1")

	w := doJSON(srv, http.MethodPost, "/api/v1/jobs/chapters", token, map[string]interface{}{
		"payload": map[string]interface{}{"transcript": "..."},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobResultRejectsNonTerminalStatus(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})

	w := doJSON(srv, http.MethodPost, "/api/v1/jobs/chapters/some-id/result", "", map[string]interface{}{
		"status": "pending",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResultSuffixDoesNotBypassAuth(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})

	// only the exact jobs callback route skips sessions
	w := doJSON(srv, http.MethodGet, "/api/v1/content/result", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(srv, http.MethodPost, "/api/v1/jobs/chapters/result", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDashboardSummary(t *testing.T) {
	srv := newTestServer(t, config.WebhookConfig{})
	token := login(t, srv, "owner-1")

	w := doJSON(srv, http.MethodPost, "/api/v1/content", token, map[string]interface{}{
		"title": "first idea",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(srv, http.MethodGet, "/api/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Summary models.DashboardSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "owner-1", resp.Summary.OwnerID)
	assert.Equal(t, 1, resp.Summary.TotalItems)
}
