package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/creatorpay/creatorpay-backend/internal/payouts"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

const defaultPayoutPeriodDays = 30

type payoutRunner interface {
	Run(ctx context.Context, opts payouts.RunOptions) (*payouts.RunSummary, error)
}

// PayoutBatchJobParams configure the scheduled settlement run.
type PayoutBatchJobParams struct {
	Logger     *logger.Logger
	Payouts    payoutRunner
	PeriodDays int
}

func NewPayoutBatchJob(params PayoutBatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	periodDays := params.PeriodDays
	if periodDays <= 0 {
		periodDays = defaultPayoutPeriodDays
	}
	return &payoutBatchJob{
		logg:       params.Logger,
		payouts:    params.Payouts,
		periodDays: periodDays,
		now:        time.Now,
	}, nil
}

type payoutBatchJob struct {
	logg       *logger.Logger
	payouts    payoutRunner
	periodDays int
	now        func() time.Time
}

func (j *payoutBatchJob) Name() string { return "payout-batch" }

// Run settles the most recent closed period: the window ending at today's
// UTC midnight. Earnings accrued today wait for the next cycle.
func (j *payoutBatchJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	periodEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	periodStart := periodEnd.AddDate(0, 0, -j.periodDays)

	summary, err := j.payouts.Run(ctx, payouts.RunOptions{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	if err != nil {
		return fmt.Errorf("payout batch: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"run_id":           summary.RunID.String(),
		"period_start":     periodStart,
		"period_end":       periodEnd,
		"payouts_created":  summary.PayoutsCreated,
		"payouts_paid":     summary.PayoutsPaid,
		"payouts_failed":   summary.PayoutsFailed,
		"creators_skipped": summary.CreatorsSkipped,
	})
	j.logg.Info(logCtx, "payout batch complete")
	return nil
}
