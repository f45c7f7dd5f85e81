package dto

import (
	"time"

	"github.com/kelasku-dev/kelasku-go-api/internal/models"
)

// SubmissionLinkRequest links a student's repository to an assignment.
type SubmissionLinkRequest struct {
	AssignmentID  uint   `json:"assignment_id" validate:"required,gt=0"`
	StudentID     uint   `json:"student_id" validate:"required,gt=0"`
	RepositoryURL string `json:"repository_url" validate:"required,url"`
	Branch        string `json:"branch" validate:"omitempty,max=255"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID *uint   `query:"assignment_id"`
	StudentID    *uint   `query:"student_id"`
	Status       *string `query:"status" validate:"omitempty,oneof=pending processing completed analyzed failed"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            uint      `json:"id"`
	AssignmentID  uint      `json:"assignment_id"`
	StudentID     uint      `json:"student_id"`
	RepositoryURL string    `json:"repository_url"`
	Branch        *string   `json:"branch"`
	CommitSHA     string    `json:"commit_sha"`
	Status        string    `json:"status"`
	AIScore       *int      `json:"ai_score"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SubmissionLinkResponse extends the submission view with the webhook secret,
// returned exactly once at link time so the student can register the webhook.
type SubmissionLinkResponse struct {
	SubmissionResponse
	WebhookSecret string `json:"webhook_secret"`
}

// NewSubmissionResponse maps a submission model to its API view.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:            submission.ID,
		AssignmentID:  submission.AssignmentID,
		StudentID:     submission.StudentID,
		RepositoryURL: submission.RepositoryURL,
		Branch:        submission.Branch,
		CommitSHA:     submission.CommitSHA,
		Status:        submission.Status,
		AIScore:       submission.AIScore,
		CreatedAt:     submission.CreatedAt,
		UpdatedAt:     submission.UpdatedAt,
	}
}
