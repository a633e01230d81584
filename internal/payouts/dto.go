package payouts

import (
	"time"

	"github.com/google/uuid"

	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
)

// PayoutView exposes one payout over the API.
type PayoutView struct {
	ID                  uuid.UUID          `json:"id"`
	CreatorID           uuid.UUID          `json:"creator_id"`
	Currency            enums.Currency     `json:"currency"`
	PeriodStart         time.Time          `json:"period_start"`
	PeriodEnd           time.Time          `json:"period_end"`
	GrossMinor          int64              `json:"gross_minor"`
	NetMinor            int64              `json:"net_minor"`
	Status              enums.PayoutStatus `json:"status"`
	ExternalTransferRef *string            `json:"external_transfer_ref,omitempty"`
	FailureReason       *string            `json:"failure_reason,omitempty"`
	ReportURL           *string            `json:"report_url,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	PaidAt              *time.Time         `json:"paid_at,omitempty"`
}

// NewPayoutView maps the storage row to its API shape.
func NewPayoutView(payout models.Payout) PayoutView {
	return PayoutView{
		ID:                  payout.ID,
		CreatorID:           payout.CreatorID,
		Currency:            payout.Currency,
		PeriodStart:         payout.PeriodStart,
		PeriodEnd:           payout.PeriodEnd,
		GrossMinor:          payout.GrossMinor,
		NetMinor:            payout.NetMinor,
		Status:              payout.Status,
		ExternalTransferRef: payout.ExternalTransferRef,
		FailureReason:       payout.FailureReason,
		ReportURL:           payout.ReportURL,
		CreatedAt:           payout.CreatedAt,
		PaidAt:              payout.PaidAt,
	}
}

// PayoutList wraps a paginated history page plus the next page cursor.
type PayoutList struct {
	Payouts    []PayoutView `json:"payouts"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// NewPayoutList maps a history page to its API shape.
func NewPayoutList(payouts []models.Payout, nextCursor string) *PayoutList {
	views := make([]PayoutView, 0, len(payouts))
	for _, payout := range payouts {
		views = append(views, NewPayoutView(payout))
	}
	return &PayoutList{Payouts: views, NextCursor: nextCursor}
}

// RunReport exposes a settlement run summary over the API.
type RunReport struct {
	RunID           uuid.UUID `json:"run_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	PayoutsCreated  int       `json:"payouts_created"`
	PayoutsPaid     int       `json:"payouts_paid"`
	PayoutsFailed   int       `json:"payouts_failed"`
	CreatorsSkipped int       `json:"creators_skipped"`
	TotalNetMinor   int64     `json:"total_net_minor"`
	DryRun          bool      `json:"dry_run"`
}

// NewRunReport maps a run summary to its API shape.
func NewRunReport(summary RunSummary) RunReport {
	return RunReport{
		RunID:           summary.RunID,
		PeriodStart:     summary.PeriodStart,
		PeriodEnd:       summary.PeriodEnd,
		PayoutsCreated:  summary.PayoutsCreated,
		PayoutsPaid:     summary.PayoutsPaid,
		PayoutsFailed:   summary.PayoutsFailed,
		CreatorsSkipped: summary.CreatorsSkipped,
		TotalNetMinor:   summary.TotalNetMinor,
		DryRun:          summary.DryRun,
	}
}
