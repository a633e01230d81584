package payloads

import (
	"time"

	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	"github.com/google/uuid"
)

// PayoutRunCompletedEvent summarizes a finished settlement run.
type PayoutRunCompletedEvent struct {
	RunID           uuid.UUID `json:"run_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	PayoutsCreated  int       `json:"payouts_created"`
	PayoutsPaid     int       `json:"payouts_paid"`
	PayoutsFailed   int       `json:"payouts_failed"`
	CreatorsSkipped int       `json:"creators_skipped"`
	TotalNetMinor   int64     `json:"total_net_minor"`
	TotalNetDisplay string    `json:"total_net_display"`
	DryRun          bool      `json:"dry_run"`
	CompletedAt     time.Time `json:"completed_at"`
}

// PayoutPaidEvent is emitted once a transfer for a payout succeeds.
type PayoutPaidEvent struct {
	PayoutID            uuid.UUID      `json:"payout_id"`
	CreatorID           uuid.UUID      `json:"creator_id"`
	Currency            enums.Currency `json:"currency"`
	NetMinor            int64          `json:"net_minor"`
	EarningCount        int            `json:"earning_count"`
	ExternalTransferRef string         `json:"external_transfer_ref"`
	PaidAt              time.Time      `json:"paid_at"`
}

// PayoutFailedEvent is emitted when a transfer is rejected or reported failed.
type PayoutFailedEvent struct {
	PayoutID      uuid.UUID      `json:"payout_id"`
	CreatorID     uuid.UUID      `json:"creator_id"`
	Currency      enums.Currency `json:"currency"`
	NetMinor      int64          `json:"net_minor"`
	FailureReason string         `json:"failure_reason"`
	FailedAt      time.Time      `json:"failed_at"`
}

// EarningClawbackFlaggedEvent flags a refund that arrived after the earning was paid out.
type EarningClawbackFlaggedEvent struct {
	EarningID  uuid.UUID      `json:"earning_id"`
	CreatorID  uuid.UUID      `json:"creator_id"`
	PurchaseID uuid.UUID      `json:"purchase_id"`
	PayoutID   *uuid.UUID     `json:"payout_id,omitempty"`
	Currency   enums.Currency `json:"currency"`
	NetMinor   int64          `json:"net_minor"`
	FlaggedAt  time.Time      `json:"flagged_at"`
}
