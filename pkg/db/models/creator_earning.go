package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/creatorpay/creatorpay-backend/pkg/enums"
)

// CreatorEarning is one immutable revenue event owed to a creator. Amounts
// never change after insert; corrections are separate rows or status flips.
type CreatorEarning struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CreatorID  uuid.UUID `gorm:"column:creator_id;type:uuid;not null;index:idx_earnings_creator_currency"`
	ItemID     uuid.UUID `gorm:"column:item_id;type:uuid;not null"`
	PurchaseID uuid.UUID `gorm:"column:purchase_id;type:uuid;not null;index"`

	// DedupeKey is the provider charge or invoice reference. One earning per
	// (purchase, billing cycle) is enforced here, never by timestamps.
	DedupeKey string `gorm:"column:dedupe_key;not null;uniqueIndex:ux_earnings_dedupe_key"`

	GrossMinor      int64          `gorm:"column:gross_minor;not null"`
	FeeMinor        int64          `gorm:"column:fee_minor;not null"`
	NetMinor        int64          `gorm:"column:net_minor;not null"`
	RevenueShareBps uint16         `gorm:"column:revenue_share_bps;not null"`
	Currency        enums.Currency `gorm:"column:currency;not null;index:idx_earnings_creator_currency"`

	Status   enums.EarningStatus `gorm:"column:status;type:earning_status;not null;default:'accrued'"`
	EarnedAt time.Time           `gorm:"column:earned_at;not null;index"`

	// PaidOut and PayoutID are owned by the payout batcher: PayoutID is set
	// by the atomic reservation claim and cleared when a payout fails.
	PaidOut  bool       `gorm:"column:paid_out;not null;default:false"`
	PayoutID *uuid.UUID `gorm:"column:payout_id;type:uuid;index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
