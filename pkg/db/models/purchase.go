package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/creatorpay/creatorpay-backend/pkg/enums"
)

// Purchase records one buyer's claim on one marketplace item. Provider
// webhooks upsert against ExternalChargeRef, so a replayed notification can
// never mint a second row for the same charge.
type Purchase struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index"`
	BuyerID  uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index:idx_purchases_buyer_item"`
	ItemID   uuid.UUID `gorm:"column:item_id;type:uuid;not null;index:idx_purchases_buyer_item"`
	// CreatorID and RevenueShareBps are captured from the checkout intent so
	// renewal invoices can accrue earnings without a lookup into the (out of
	// scope) catalog service.
	CreatorID       uuid.UUID `gorm:"column:creator_id;type:uuid;not null;index"`
	RevenueShareBps uint16    `gorm:"column:revenue_share_bps;not null"`

	ExternalCustomerRef     string  `gorm:"column:external_customer_ref"`
	ExternalChargeRef       string  `gorm:"column:external_charge_ref;not null;uniqueIndex:ux_purchases_charge_ref"`
	ExternalSubscriptionRef *string `gorm:"column:external_subscription_ref;index"`

	Currency    enums.Currency       `gorm:"column:currency;not null"`
	AmountMinor int64                `gorm:"column:amount_minor;not null"`
	Kind        enums.PurchaseKind   `gorm:"column:kind;type:purchase_kind;not null"`
	Status      enums.PurchaseStatus `gorm:"column:status;type:purchase_status;not null;default:'pending'"`

	StartsAt  time.Time  `gorm:"column:starts_at;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`

	// Fingerprint is a dedupe hash over (tenant, buyer, item, charge ref).
	Fingerprint string `gorm:"column:fingerprint;not null;index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
