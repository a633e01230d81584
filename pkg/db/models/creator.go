package models

import (
	"time"

	"github.com/google/uuid"
)

// Creator is the payee side of the marketplace: the party owed revenue when
// one of their items sells.
type Creator struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID    uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index"`
	DisplayName string    `gorm:"column:display_name;not null"`
	// AccountRef is the connected account on the payment rail that receives
	// transfers. Empty until onboarding completes.
	AccountRef string `gorm:"column:account_ref;index"`
	Verified   bool   `gorm:"column:verified;not null;default:false"`
	// MinPayoutMinorOverride, when set, replaces the global payout floor for
	// this creator. Interpreted in the currency of each payout group.
	MinPayoutMinorOverride *int64    `gorm:"column:min_payout_minor_override"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Payable reports whether the creator can receive settlement transfers.
func (c *Creator) Payable() bool {
	return c != nil && c.Verified && c.AccountRef != ""
}
