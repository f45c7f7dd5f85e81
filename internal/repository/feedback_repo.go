package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/kelasku-dev/kelasku-go-api/internal/models"
)

// FeedbackRepository defines data operations for feedback items.
type FeedbackRepository interface {
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.FeedbackItem, error)

	// ReplaceAIForSubmission deletes every ai-reviewer row for the submission
	// and inserts the given set in one transaction, so a concurrent reader
	// never observes a mix of old and new findings. Teacher rows are left
	// untouched. An empty input still performs the delete, clearing stale
	// feedback when a re-analysis finds nothing.
	ReplaceAIForSubmission(ctx context.Context, submissionID uint, items []models.FeedbackItem) ([]models.FeedbackItem, error)
}

type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository instantiates the repository.
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

func (r *feedbackRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.FeedbackItem, error) {
	var items []models.FeedbackItem
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *feedbackRepository) ReplaceAIForSubmission(ctx context.Context, submissionID uint, items []models.FeedbackItem) ([]models.FeedbackItem, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ? AND reviewer = ?", submissionID, models.FeedbackReviewerAI).
			Delete(&models.FeedbackItem{}).Error; err != nil {
			return err
		}

		if len(items) == 0 {
			return nil
		}

		for i := range items {
			items[i].ID = 0
			items[i].SubmissionID = submissionID
			items[i].Reviewer = models.FeedbackReviewerAI
		}

		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}
