package models

import "time"

// Reviewer kinds for feedback items.
const (
	// FeedbackReviewerAI marks feedback produced by the automated reviewer.
	FeedbackReviewerAI = "ai"
	// FeedbackReviewerTeacher marks feedback written by a human teacher.
	FeedbackReviewerTeacher = "teacher"
)

// Severity levels ordered from least to most serious.
const (
	FeedbackSeverityLow      = "low"
	FeedbackSeverityMedium   = "medium"
	FeedbackSeverityHigh     = "high"
	FeedbackSeverityCritical = "critical"
)

// Feedback categories. Unrecognised values collapse to CategoryCodeQuality.
const (
	FeedbackCategoryCodeQuality   = "code_quality"
	FeedbackCategoryBug           = "bug"
	FeedbackCategorySecurity      = "security"
	FeedbackCategoryPerformance   = "performance"
	FeedbackCategoryStyle         = "style"
	FeedbackCategoryDocumentation = "documentation"
	FeedbackCategoryTesting       = "testing"
)

// FeedbackItem is one categorised review comment attached to a submission.
// AI items are replaced wholesale on every successful re-analysis; teacher
// items are never touched by the pipeline.
type FeedbackItem struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Reviewer     string    `gorm:"size:16;not null;index" json:"reviewer"`
	Category     string    `gorm:"size:32;not null" json:"category"`
	Severity     string    `gorm:"size:16;not null" json:"severity"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	FilePath     string    `gorm:"size:512" json:"file_path"`
	LineNumber   *int      `json:"line_number"`
	Suggestion   *string   `gorm:"type:text" json:"suggestion"`
	CreatedAt    time.Time `json:"created_at"`
}

// SeverityWeight maps a severity to its score penalty. Unknown severities
// weigh the same as low.
func SeverityWeight(severity string) int {
	switch severity {
	case FeedbackSeverityCritical:
		return 20
	case FeedbackSeverityHigh:
		return 10
	case FeedbackSeverityMedium:
		return 5
	default:
		return 2
	}
}
