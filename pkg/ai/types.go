package ai

import "context"

// Severity levels, lowest to highest. Unrecognised input collapses to low.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Feedback categories. Unrecognised input collapses to CategoryCodeQuality.
const (
	CategoryCodeQuality   = "code_quality"
	CategoryBug           = "bug"
	CategorySecurity      = "security"
	CategoryPerformance   = "performance"
	CategoryStyle         = "style"
	CategoryDocumentation = "documentation"
	CategoryTesting       = "testing"
)

// maxItemsPerFile caps how many findings a single file may contribute, to
// bound downstream storage and UI load.
const maxItemsPerFile = 10

// ReviewFile is one source file handed to the reviewer.
type ReviewFile struct {
	Path    string
	Content string
}

// ReviewSettings carries optional assignment-specific grading context.
type ReviewSettings struct {
	GradingRubric string
	GuidanceText  string
}

// FeedbackItem is one normalised finding from the reviewer. Category and
// Severity are always members of the fixed vocabularies above.
type FeedbackItem struct {
	FilePath   string  `json:"file_path"`
	Category   string  `json:"category"`
	Severity   string  `json:"severity"`
	Content    string  `json:"content"`
	LineNumber *int    `json:"line_number,omitempty"`
	Suggestion *string `json:"suggestion,omitempty"`
}

// ReviewResult aggregates the findings for one batch of files.
type ReviewResult struct {
	Items []FeedbackItem
	// FilesReviewed counts files whose response parsed, including ones with
	// zero findings. FilesFailed counts files that errored or produced an
	// unparseable response.
	FilesReviewed int
	FilesFailed   int
}

// AllFilesFailed reports whether no file in a non-empty batch produced a
// usable response, which callers treat as a permanent failure.
func (r ReviewResult) AllFilesFailed() bool {
	return r.FilesFailed > 0 && r.FilesReviewed == 0
}

// Reviewer describes an AI model capable of reviewing source files.
type Reviewer interface {
	Review(ctx context.Context, files []ReviewFile, settings ReviewSettings) (ReviewResult, error)
}
