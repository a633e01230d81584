package cron

import (
	"context"
	"fmt"

	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

type reportSweeper interface {
	EmitMissingReports(ctx context.Context) (int, error)
}

// PayoutReportJobParams configure the report backfill sweep.
type PayoutReportJobParams struct {
	Logger  *logger.Logger
	Payouts reportSweeper
}

func NewPayoutReportJob(params PayoutReportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &payoutReportJob{
		logg:    params.Logger,
		payouts: params.Payouts,
	}, nil
}

type payoutReportJob struct {
	logg    *logger.Logger
	payouts reportSweeper
}

func (j *payoutReportJob) Name() string { return "payout-report-sweep" }

// Run attaches remittance reports to paid payouts that are missing one.
// Payouts confirmed through the webhook path are marked paid inside that
// event's transaction, so their report has to be produced afterwards.
func (j *payoutReportJob) Run(ctx context.Context) error {
	emitted, err := j.payouts.EmitMissingReports(ctx)
	if err != nil {
		return fmt.Errorf("payout report sweep: %w", err)
	}
	if emitted > 0 {
		logCtx := j.logg.WithField(ctx, "reports_emitted", emitted)
		j.logg.Info(logCtx, "payout reports backfilled")
	}
	return nil
}
