package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oshitechglobal/creatordeck/internal/config"
	"github.com/oshitechglobal/creatordeck/internal/models"
)

func newJobService(t *testing.T, cfg *config.WebhookConfig) (*JobService, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	logger := nopLogger()
	monitor := NewMonitoringService(db, logger)
	return NewJobService(db, logger, NewWebhookClient(logger), NewLocalFeed(), monitor, cfg), db
}

func TestSubmitSyncJobCompletesFromResponse(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"post": "Generated LinkedIn post body"}`))
	}))
	defer srv.Close()

	s, _ := newJobService(t, &config.WebhookConfig{LinkedInPost: srv.URL})

	job, duplicate, err := s.Submit(context.Background(), KindLinkedInPost, "owner-1", "video-123", map[string]interface{}{
		"transcript": "hello world",
	})
	require.NoError(t, err)

	assert.False(t, duplicate)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "Generated LinkedIn post body", job.Result)
	assert.NotEmpty(t, job.RawResponse)

	assert.Equal(t, job.ID, received["job_id"])
	assert.Equal(t, "owner-1", received["owner_id"])
	assert.Equal(t, "video-123", received["source_id"])
	assert.Equal(t, "hello world", received["transcript"])
	assert.NotEmpty(t, received["sent_at"])
}

func TestSubmitSyncJobMissingResultFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	s, _ := newJobService(t, &config.WebhookConfig{RevenueContent: srv.URL})

	job, _, err := s.Submit(context.Background(), KindRevenueContent, "owner-1", "video-123", nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "missing result")
}

func TestSubmitAsyncJobStaysPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	s, _ := newJobService(t, &config.WebhookConfig{VideoAnalysis: srv.URL})

	job, duplicate, err := s.Submit(context.Background(), KindVideoAnalysis, "owner-1", "video-123", nil)
	require.NoError(t, err)

	assert.False(t, duplicate)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Empty(t, job.Result)
	assert.JSONEq(t, `{"accepted": true}`, string(job.RawResponse))
}

func TestSubmitDuplicateReturnsExistingWithoutSecondPost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	s, _ := newJobService(t, &config.WebhookConfig{CommentScrape: srv.URL})
	ctx := context.Background()

	first, duplicate, err := s.Submit(ctx, KindCommentScrape, "owner-1", "video-123", nil)
	require.NoError(t, err)
	require.False(t, duplicate)

	second, duplicate, err := s.Submit(ctx, KindCommentScrape, "owner-1", "video-123", nil)
	require.NoError(t, err)

	assert.True(t, duplicate)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitSameSourceDifferentOwners(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	s, _ := newJobService(t, &config.WebhookConfig{Chapters: srv.URL})
	ctx := context.Background()

	first, _, err := s.Submit(ctx, KindChapters, "owner-1", "video-123", nil)
	require.NoError(t, err)
	second, duplicate, err := s.Submit(ctx, KindChapters, "owner-2", "video-123", nil)
	require.NoError(t, err)

	assert.False(t, duplicate)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSubmitWebhookErrorMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "workflow disabled", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, db := newJobService(t, &config.WebhookConfig{VideoAnalysis: srv.URL})

	job, _, err := s.Submit(context.Background(), KindVideoAnalysis, "owner-1", "video-123", nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "503")

	// the failure lands in the error log too
	var errorLogs []models.ErrorLog
	require.NoError(t, db.Find(&errorLogs).Error)
	require.Len(t, errorLogs, 1)
	assert.Equal(t, "jobs", errorLogs[0].Source)
	assert.Equal(t, job.ID, errorLogs[0].JobID)
}

func TestSubmitUnconfiguredWebhookMarksFailed(t *testing.T) {
	s, _ := newJobService(t, &config.WebhookConfig{})

	job, _, err := s.Submit(context.Background(), KindChapters, "owner-1", "video-123", nil)
	require.NoError(t, err)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "not configured")
}

func TestSubmitUnknownKind(t *testing.T) {
	s, _ := newJobService(t, &config.WebhookConfig{})

	_, _, err := s.Submit(context.Background(), "blog-post", "owner-1", "video-123", nil)
	assert.Error(t, err)
}

func TestCompleteWritesBackResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	s, _ := newJobService(t, &config.WebhookConfig{Chapters: srv.URL})
	ctx := context.Background()

	job, _, err := s.Submit(ctx, KindChapters, "owner-1", "video-123", nil)
	require.NoError(t, err)
	require.Equal(t, models.JobPending, job.Status)

	raw := []byte(`{"result": "00:00 Intro\n02:10 Demo"}`)
	done, err := s.Complete(ctx, KindChapters, job.ID, models.JobCompleted, "00:00 Intro\n02:10 Demo", raw)
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, done.Status)
	assert.Equal(t, "00:00 Intro\n02:10 Demo", done.Result)
	assert.Greater(t, done.Version, job.Version)
}

func TestCompleteRejectsNonTerminalStatus(t *testing.T) {
	s, _ := newJobService(t, &config.WebhookConfig{})

	_, err := s.Complete(context.Background(), KindChapters, "some-id", models.JobPending, "", nil)
	assert.Error(t, err)
}

func TestJobKindsAreIsolatedTables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	s, _ := newJobService(t, &config.WebhookConfig{
		VideoAnalysis: srv.URL,
		CommentScrape: srv.URL,
	})
	ctx := context.Background()

	_, _, err := s.Submit(ctx, KindVideoAnalysis, "owner-1", "video-123", nil)
	require.NoError(t, err)
	_, duplicate, err := s.Submit(ctx, KindCommentScrape, "owner-1", "video-123", nil)
	require.NoError(t, err)

	// same source id in a different kind is a new job, not a duplicate
	assert.False(t, duplicate)

	analysis, err := s.List(ctx, KindVideoAnalysis, "owner-1")
	require.NoError(t, err)
	scrapes, err := s.List(ctx, KindCommentScrape, "owner-1")
	require.NoError(t, err)
	assert.Len(t, analysis, 1)
	assert.Len(t, scrapes, 1)
}

func TestDeleteJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	s, _ := newJobService(t, &config.WebhookConfig{Chapters: srv.URL})
	ctx := context.Background()

	job, _, err := s.Submit(ctx, KindChapters, "owner-1", "video-123", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, KindChapters, "owner-1", job.ID))
	_, err = s.Get(ctx, KindChapters, "owner-1", job.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestExtractResult(t *testing.T) {
	result, ok := extractResult([]byte(`{"result": "chapters here"}`))
	assert.True(t, ok)
	assert.Equal(t, "chapters here", result)

	result, ok = extractResult([]byte(`{"post": "linkedin text"}`))
	assert.True(t, ok)
	assert.Equal(t, "linkedin text", result)

	result, ok = extractResult([]byte(`{"output": {"title": "Revenue ideas"}}`))
	assert.True(t, ok)
	assert.JSONEq(t, `{"title": "Revenue ideas"}`, result)

	_, ok = extractResult([]byte(`{"status": "ok"}`))
	assert.False(t, ok)

	_, ok = extractResult([]byte(`{"result": ""}`))
	assert.False(t, ok)

	_, ok = extractResult([]byte(`not json`))
	assert.False(t, ok)

	_, ok = extractResult(nil)
	assert.False(t, ok)
}
