package dto

import (
	"strings"
	"time"

	"github.com/kelasku-dev/kelasku-go-api/internal/models"
)

// WebhookHeaders carries the delivery metadata read from the inbound request.
type WebhookHeaders struct {
	Event      string
	DeliveryID string
	Signature  string
}

// PushCommit is one commit inside a push payload.
type PushCommit struct {
	ID       string   `json:"id"`
	Message  string   `json:"message"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// PushRepository identifies the repository a push targets.
type PushRepository struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Private  bool   `json:"private"`
}

// PushEventPayload is the subset of a code-host push payload the pipeline
// consumes. Authenticity is checked against the raw body, never against a
// re-serialisation of this struct.
type PushEventPayload struct {
	Ref        string         `json:"ref"`
	Before     string         `json:"before"`
	After      string         `json:"after"`
	Repository PushRepository `json:"repository"`
	Commits    []PushCommit   `json:"commits"`
}

// Branch derives the branch name from the ref path; empty for non-branch refs.
func (p PushEventPayload) Branch() string {
	if strings.HasPrefix(p.Ref, "refs/heads/") {
		return strings.TrimPrefix(p.Ref, "refs/heads/")
	}
	return ""
}

// WebhookAckResponse is returned for every delivery before processing begins.
type WebhookAckResponse struct {
	Received   bool   `json:"received"`
	DeliveryID string `json:"delivery_id"`
}

// RetryAcceptedResponse acknowledges an accepted manual retry.
type RetryAcceptedResponse struct {
	Status string `json:"status"`
}

// FailedSubmissionResponse summarises one failed submission for operators.
type FailedSubmissionResponse struct {
	ID            uint      `json:"id"`
	AssignmentID  uint      `json:"assignment_id"`
	StudentID     uint      `json:"student_id"`
	RepositoryURL string    `json:"repository_url"`
	Branch        *string   `json:"branch"`
	CommitSHA     string    `json:"commit_sha"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewFailedSubmissionResponse maps a submission model to its operator view.
func NewFailedSubmissionResponse(submission models.Submission) FailedSubmissionResponse {
	return FailedSubmissionResponse{
		ID:            submission.ID,
		AssignmentID:  submission.AssignmentID,
		StudentID:     submission.StudentID,
		RepositoryURL: submission.RepositoryURL,
		Branch:        submission.Branch,
		CommitSHA:     submission.CommitSHA,
		UpdatedAt:     submission.UpdatedAt,
	}
}

// SubmissionAnalyzedEvent is the live-update payload broadcast to course
// subscribers after feedback is persisted.
type SubmissionAnalyzedEvent struct {
	SubmissionID  uint    `json:"submission_id"`
	StudentID     uint    `json:"student_id"`
	AssignmentID  uint    `json:"assignment_id"`
	FeedbackCount int     `json:"feedback_count"`
	MeanSeverity  float64 `json:"mean_severity"`
}
