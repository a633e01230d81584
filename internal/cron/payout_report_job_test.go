package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

type fakeReportSweeper struct {
	emitted int
	err     error
	calls   int
}

func (f *fakeReportSweeper) EmitMissingReports(ctx context.Context) (int, error) {
	f.calls++
	return f.emitted, f.err
}

func TestPayoutReportJobSweeps(t *testing.T) {
	sweeper := &fakeReportSweeper{emitted: 3}
	job, err := NewPayoutReportJob(PayoutReportJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Payouts: sweeper,
	})
	if err != nil {
		t.Fatalf("NewPayoutReportJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected 1 sweep call, got %d", sweeper.calls)
	}
}

func TestPayoutReportJobPropagatesErrors(t *testing.T) {
	sweeper := &fakeReportSweeper{err: errors.New("boom")}
	job, err := NewPayoutReportJob(PayoutReportJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Payouts: sweeper,
	})
	if err != nil {
		t.Fatalf("NewPayoutReportJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
