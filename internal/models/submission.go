package models

import "time"

// Submission status values. Any non-processing status can be reclaimed into
// processing by a new webhook delivery or a manual retry.
const (
	// SubmissionStatusPending indicates the repository is linked but has never been analysed.
	SubmissionStatusPending = "pending"
	// SubmissionStatusProcessing indicates an analysis round is in flight.
	SubmissionStatusProcessing = "processing"
	// SubmissionStatusCompleted indicates the last round finished with nothing to analyse.
	SubmissionStatusCompleted = "completed"
	// SubmissionStatusAnalyzed indicates the last round produced a score and feedback.
	SubmissionStatusAnalyzed = "analyzed"
	// SubmissionStatusFailed indicates the last round hit an unrecoverable error.
	SubmissionStatusFailed = "failed"
)

// Submission represents a student's linked repository for one assignment.
// CommitSHA, Status and AIScore are mutated exclusively by the review pipeline.
type Submission struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	AssignmentID  uint       `gorm:"not null;index" json:"assignment_id"`
	StudentID     uint       `gorm:"not null;index" json:"student_id"`
	RepositoryURL string     `gorm:"size:512;not null;index" json:"repository_url"`
	Branch        *string    `gorm:"size:255" json:"branch"`
	CommitSHA     string     `gorm:"size:64" json:"commit_sha"`
	Status        string     `gorm:"size:32;not null;index" json:"status"`
	AIScore       *int       `json:"ai_score"`
	WebhookSecret string     `gorm:"size:128;not null" json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Assignment    Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student       Student    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

// IsProcessing reports whether an analysis round currently holds the claim.
func (s Submission) IsProcessing() bool {
	return s.Status == SubmissionStatusProcessing
}

// HasScore reports whether the submission carries an AI score from a finished round.
func (s Submission) HasScore() bool {
	return s.AIScore != nil
}
