package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/oshitechglobal/creatordeck/internal/config"
	"github.com/oshitechglobal/creatordeck/internal/models"
)

// JobKind describes one generation flow. Sync kinds get their result from
// the webhook POST response; async kinds stay pending until the automation
// calls the result endpoint back.
type JobKind struct {
	Name       string
	Table      string
	WebhookURL string
	Sync       bool
}

const (
	KindVideoAnalysis  = "video-analysis"
	KindCommentScrape  = "comment-scrape"
	KindChapters       = "chapters"
	KindLinkedInPost   = "linkedin-post"
	KindRevenueContent = "revenue-content"
)

// JobService runs the five structurally parallel generation proxies
// through one registry, keyed by kind name.
type JobService struct {
	db      *gorm.DB
	logger  *zap.Logger
	webhook *WebhookClient
	feed    Feed
	monitor *MonitoringService
	kinds   map[string]JobKind
}

func NewJobService(db *gorm.DB, logger *zap.Logger, webhook *WebhookClient, feed Feed, monitor *MonitoringService, cfg *config.WebhookConfig) *JobService {
	s := &JobService{
		db:      db,
		logger:  logger,
		webhook: webhook,
		feed:    feed,
		monitor: monitor,
		kinds:   make(map[string]JobKind),
	}

	s.register(JobKind{Name: KindVideoAnalysis, Table: "video_analysis_jobs", WebhookURL: cfg.VideoAnalysis})
	s.register(JobKind{Name: KindCommentScrape, Table: "comment_scrape_jobs", WebhookURL: cfg.CommentScrape})
	s.register(JobKind{Name: KindChapters, Table: "chapter_jobs", WebhookURL: cfg.Chapters})
	s.register(JobKind{Name: KindLinkedInPost, Table: "linkedin_post_jobs", WebhookURL: cfg.LinkedInPost, Sync: true})
	s.register(JobKind{Name: KindRevenueContent, Table: "revenue_content_jobs", WebhookURL: cfg.RevenueContent, Sync: true})

	return s
}

func (s *JobService) register(kind JobKind) {
	s.kinds[kind.Name] = kind
	s.logger.Info("Job kind registered",
		zap.String("kind", kind.Name),
		zap.Bool("sync", kind.Sync))
}

func (s *JobService) Kind(name string) (JobKind, bool) {
	kind, ok := s.kinds[name]
	return kind, ok
}

// Submit creates a pending job and fires the kind's webhook. An existing
// job for the same (owner, source) is returned as-is with duplicate=true;
// the unique index turns a concurrent double-submit into the same answer.
func (s *JobService) Submit(ctx context.Context, kindName, ownerID, sourceID string, payload map[string]interface{}) (*models.JobBase, bool, error) {
	kind, ok := s.Kind(kindName)
	if !ok {
		return nil, false, fmt.Errorf("unknown job kind %q", kindName)
	}

	existing, err := s.find(ctx, kind, ownerID, sourceID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to query existing job: %w", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	job := &models.JobBase{
		OwnerID:  ownerID,
		SourceID: sourceID,
		Status:   models.JobPending,
		Version:  1,
	}
	err = s.db.WithContext(ctx).Table(kind.Table).Create(job).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, err = s.find(ctx, kind, ownerID, sourceID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to re-read existing job: %w", err)
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}
	s.publish(ctx, ChangeInsert, kind, job)

	body := map[string]interface{}{
		"job_id":    job.ID,
		"owner_id":  ownerID,
		"source_id": sourceID,
	}
	for k, v := range payload {
		body[k] = v
	}

	respBody, postErr := s.webhook.Post(ctx, kind.WebhookURL, body)
	if postErr != nil {
		job, err = s.transition(ctx, kind, job.ID, models.JobFailed, "", respBody, postErr.Error())
		if err != nil {
			return nil, false, err
		}
		return job, false, nil
	}

	if kind.Sync {
		result, ok := extractResult(respBody)
		if !ok {
			job, err = s.transition(ctx, kind, job.ID, models.JobFailed, "", respBody, "webhook response missing result")
		} else {
			job, err = s.transition(ctx, kind, job.ID, models.JobCompleted, result, respBody, "")
		}
		if err != nil {
			return nil, false, err
		}
		return job, false, nil
	}

	// async kinds stay pending; keep the acknowledgement for debugging
	if len(respBody) > 0 {
		job, err = s.storeResponse(ctx, kind, job.ID, respBody)
		if err != nil {
			return nil, false, err
		}
	}
	return job, false, nil
}

// Complete is the automation write-back: the external actor reports the
// job's terminal status, and subscribers observe it via the change feed.
func (s *JobService) Complete(ctx context.Context, kindName, id string, status models.JobStatus, result string, raw []byte) (*models.JobBase, error) {
	kind, ok := s.Kind(kindName)
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", kindName)
	}
	if status != models.JobCompleted && status != models.JobFailed {
		return nil, fmt.Errorf("invalid terminal status %q", status)
	}

	errMsg := ""
	if status == models.JobFailed {
		errMsg = "reported failed by automation"
	}
	return s.transition(ctx, kind, id, status, result, raw, errMsg)
}

func (s *JobService) Get(ctx context.Context, kindName, ownerID, id string) (*models.JobBase, error) {
	kind, ok := s.Kind(kindName)
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", kindName)
	}

	var job models.JobBase
	err := s.db.WithContext(ctx).Table(kind.Table).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobService) List(ctx context.Context, kindName, ownerID string) ([]models.JobBase, error) {
	kind, ok := s.Kind(kindName)
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", kindName)
	}

	var jobs []models.JobBase
	err := s.db.WithContext(ctx).Table(kind.Table).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobService) Delete(ctx context.Context, kindName, ownerID, id string) error {
	kind, ok := s.Kind(kindName)
	if !ok {
		return fmt.Errorf("unknown job kind %q", kindName)
	}

	job, err := s.Get(ctx, kindName, ownerID, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Table(kind.Table).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&models.JobBase{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	s.publish(ctx, ChangeDelete, kind, job)
	return nil
}

func (s *JobService) find(ctx context.Context, kind JobKind, ownerID, sourceID string) (*models.JobBase, error) {
	var job models.JobBase
	err := s.db.WithContext(ctx).Table(kind.Table).
		Where("owner_id = ? AND source_id = ?", ownerID, sourceID).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobService) transition(ctx context.Context, kind JobKind, id string, status models.JobStatus, result string, raw []byte, errMsg string) (*models.JobBase, error) {
	updates := map[string]interface{}{
		"status":  status,
		"version": gorm.Expr("version + 1"),
	}
	if result != "" {
		updates["result"] = result
	}
	if len(raw) > 0 {
		updates["raw_response"] = raw
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}

	err := s.db.WithContext(ctx).Table(kind.Table).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	var job models.JobBase
	err = s.db.WithContext(ctx).Table(kind.Table).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, err
	}

	if status == models.JobFailed {
		s.logger.Warn("Generation job failed",
			zap.String("kind", kind.Name),
			zap.String("job_id", id),
			zap.String("error", errMsg))
		if recordErr := s.monitor.RecordError("ERROR", "jobs",
			fmt.Sprintf("%s job failed", kind.Name), errMsg,
			WithOwner(job.OwnerID), WithJob(job.ID)); recordErr != nil {
			s.logger.Warn("Failed to record job error", zap.Error(recordErr))
		}
	}

	s.publish(ctx, ChangeUpdate, kind, &job)
	return &job, nil
}

func (s *JobService) storeResponse(ctx context.Context, kind JobKind, id string, raw []byte) (*models.JobBase, error) {
	err := s.db.WithContext(ctx).Table(kind.Table).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"raw_response": raw,
			"version":      gorm.Expr("version + 1"),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store webhook response: %w", err)
	}

	var job models.JobBase
	err = s.db.WithContext(ctx).Table(kind.Table).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobService) publish(ctx context.Context, typ ChangeType, kind JobKind, job *models.JobBase) {
	ev := NewChangeEvent(typ, kind.Table, job.OwnerID, job.Version, job)
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish job change",
			zap.String("kind", kind.Name),
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

// extractResult pulls the generated payload out of a synchronous webhook
// response. Presence checks only, no schema validation.
func extractResult(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", false
	}

	for _, key := range []string{"result", "post", "content", "html", "output"} {
		value, present := parsed[key]
		if !present || value == nil {
			continue
		}
		if text, ok := value.(string); ok {
			if text == "" {
				continue
			}
			return text, true
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			continue
		}
		return string(encoded), true
	}
	return "", false
}
