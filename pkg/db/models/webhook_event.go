package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the durable dedupe record for provider notifications. It is
// inserted in the same transaction as the side effect it guards, so a replay
// either finds the row or finds nothing committed at all.
type WebhookEvent struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider        string    `gorm:"column:provider;not null;uniqueIndex:ux_webhook_events_provider_event"`
	ProviderEventID string    `gorm:"column:provider_event_id;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType       string    `gorm:"column:event_type;not null;index"`
	ProcessedAt     time.Time `gorm:"column:processed_at;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime;index"`
}
