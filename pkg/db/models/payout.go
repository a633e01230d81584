package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/creatorpay/creatorpay-backend/pkg/enums"
)

// Payout covers one settlement attempt for one creator in one currency.
// While status is not failed, the sum of net_minor across earnings holding
// this payout's id equals NetMinor.
type Payout struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CreatorID uuid.UUID      `gorm:"column:creator_id;type:uuid;not null;index"`
	Currency  enums.Currency `gorm:"column:currency;not null"`

	PeriodStart time.Time `gorm:"column:period_start;not null"`
	PeriodEnd   time.Time `gorm:"column:period_end;not null"`

	GrossMinor int64 `gorm:"column:gross_minor;not null"`
	NetMinor   int64 `gorm:"column:net_minor;not null"`

	Status enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`

	// ExternalTransferRef is the payment rail's transfer id once issued. Its
	// presence means money movement may have started and the payout can no
	// longer be canceled locally.
	ExternalTransferRef *string `gorm:"column:external_transfer_ref;index"`
	FailureReason       *string `gorm:"column:failure_reason"`
	ReportURL           *string `gorm:"column:report_url"`

	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	PaidAt    *time.Time `gorm:"column:paid_at"`
}
