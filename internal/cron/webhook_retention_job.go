package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

const defaultWebhookRetentionDays = 90

type webhookEventRepo interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WebhookRetentionJobParams configure the dedupe-row cleanup.
type WebhookRetentionJobParams struct {
	Logger     *logger.Logger
	Repository webhookEventRepo
	Retention  int
}

func NewWebhookRetentionJob(params WebhookRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("webhook repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultWebhookRetentionDays
	}
	return &webhookRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type webhookRetentionJob struct {
	logg      *logger.Logger
	repo      webhookEventRepo
	retention int
	now       func() time.Time
}

func (j *webhookRetentionJob) Name() string { return "webhook-retention" }

// Run deletes dedupe rows older than the retention window. Providers stop
// redelivering long before this window closes, so dropping the rows cannot
// reopen a replay.
func (j *webhookRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("webhook retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "webhook retention cleanup complete")
	return nil
}
