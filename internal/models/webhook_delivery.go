package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookDelivery is an audit row recorded for every inbound webhook, whether
// or not it resulted in an analysis round. Summary holds a small projection of
// the payload (ref, before/after SHAs, commit count), never the full body.
type WebhookDelivery struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	Provider   string            `gorm:"size:32;not null" json:"provider"`
	DeliveryID string            `gorm:"size:128;index" json:"delivery_id"`
	Event      string            `gorm:"size:64;not null" json:"event"`
	Repository string            `gorm:"size:255;index" json:"repository"`
	Handled    bool              `gorm:"not null;default:false" json:"handled"`
	Summary    datatypes.JSONMap `json:"summary"`
	CreatedAt  time.Time         `json:"created_at"`
}
