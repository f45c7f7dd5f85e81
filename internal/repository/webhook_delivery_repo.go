package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/kelasku-dev/kelasku-go-api/internal/models"
)

// WebhookDeliveryRepository records inbound webhook deliveries for triage.
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *models.WebhookDelivery) error
	ListByRepository(ctx context.Context, repository string, limit int) ([]models.WebhookDelivery, error)
}

type webhookDeliveryRepository struct {
	db *gorm.DB
}

// NewWebhookDeliveryRepository instantiates the repository.
func NewWebhookDeliveryRepository(db *gorm.DB) WebhookDeliveryRepository {
	return &webhookDeliveryRepository{db: db}
}

func (r *webhookDeliveryRepository) Create(ctx context.Context, delivery *models.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *webhookDeliveryRepository) ListByRepository(ctx context.Context, repository string, limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}

	var deliveries []models.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("repository = ?", repository).
		Order("created_at DESC").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}

	return deliveries, nil
}
