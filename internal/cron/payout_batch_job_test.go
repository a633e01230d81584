package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creatorpay/creatorpay-backend/internal/payouts"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

func TestPayoutBatchJobUsesClosedPeriod(t *testing.T) {
	now := time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC)
	runner := &fakePayoutRunner{}
	job := newPayoutBatchJob(t, runner, 30)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expectedEnd := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	expectedStart := expectedEnd.AddDate(0, 0, -30)
	if !runner.lastOpts.PeriodEnd.Equal(expectedEnd) {
		t.Fatalf("expected period end %s, got %s", expectedEnd, runner.lastOpts.PeriodEnd)
	}
	if !runner.lastOpts.PeriodStart.Equal(expectedStart) {
		t.Fatalf("expected period start %s, got %s", expectedStart, runner.lastOpts.PeriodStart)
	}
	if runner.lastOpts.DryRun {
		t.Fatal("scheduled runs must not be dry runs")
	}
}

func TestPayoutBatchJobPropagatesErrors(t *testing.T) {
	runner := &fakePayoutRunner{err: errors.New("boom")}
	job := newPayoutBatchJob(t, runner, 30)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newPayoutBatchJob(t *testing.T, runner *fakePayoutRunner, periodDays int) *payoutBatchJob {
	t.Helper()
	jobIface, err := NewPayoutBatchJob(PayoutBatchJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Payouts:    runner,
		PeriodDays: periodDays,
	})
	if err != nil {
		t.Fatalf("NewPayoutBatchJob: %v", err)
	}
	job, ok := jobIface.(*payoutBatchJob)
	if !ok {
		t.Fatalf("expected payoutBatchJob, got %T", jobIface)
	}
	return job
}

type fakePayoutRunner struct {
	lastOpts payouts.RunOptions
	err      error
	called   int
}

func (f *fakePayoutRunner) Run(ctx context.Context, opts payouts.RunOptions) (*payouts.RunSummary, error) {
	f.called++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &payouts.RunSummary{
		RunID:       uuid.New(),
		PeriodStart: opts.PeriodStart,
		PeriodEnd:   opts.PeriodEnd,
	}, nil
}
