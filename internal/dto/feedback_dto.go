package dto

import (
	"time"

	"github.com/kelasku-dev/kelasku-go-api/internal/models"
)

// FeedbackItemResponse serialises one review finding.
type FeedbackItemResponse struct {
	ID         uint      `json:"id"`
	Reviewer   string    `json:"reviewer"`
	Category   string    `json:"category"`
	Severity   string    `json:"severity"`
	Content    string    `json:"content"`
	FilePath   string    `json:"file_path,omitempty"`
	LineNumber *int      `json:"line_number,omitempty"`
	Suggestion *string   `json:"suggestion,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SubmissionFeedbackResponse bundles a submission's score with its feedback.
type SubmissionFeedbackResponse struct {
	SubmissionID uint                   `json:"submission_id"`
	Status       string                 `json:"status"`
	AIScore      *int                   `json:"ai_score"`
	Items        []FeedbackItemResponse `json:"items"`
}

// NewFeedbackItemResponse maps a feedback model to its API view.
func NewFeedbackItemResponse(item models.FeedbackItem) FeedbackItemResponse {
	return FeedbackItemResponse{
		ID:         item.ID,
		Reviewer:   item.Reviewer,
		Category:   item.Category,
		Severity:   item.Severity,
		Content:    item.Content,
		FilePath:   item.FilePath,
		LineNumber: item.LineNumber,
		Suggestion: item.Suggestion,
		CreatedAt:  item.CreatedAt,
	}
}
