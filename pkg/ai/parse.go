package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strings"
)

// placeholderContent replaces a finding whose content field is missing.
const placeholderContent = "No description provided."

var validCategories = map[string]struct{}{
	CategoryCodeQuality:   {},
	CategoryBug:           {},
	CategorySecurity:      {},
	CategoryPerformance:   {},
	CategoryStyle:         {},
	CategoryDocumentation: {},
	CategoryTesting:       {},
}

var validSeverities = map[string]struct{}{
	SeverityLow:      {},
	SeverityMedium:   {},
	SeverityHigh:     {},
	SeverityCritical: {},
}

// severityPenalties are the per-finding score deductions.
var severityPenalties = map[string]int{
	SeverityCritical: 20,
	SeverityHigh:     10,
	SeverityMedium:   5,
	SeverityLow:      2,
}

// NormalizeCategory maps any raw category value into the fixed vocabulary.
func NormalizeCategory(raw interface{}) string {
	if value, ok := raw.(string); ok {
		candidate := strings.ToLower(strings.TrimSpace(value))
		if _, valid := validCategories[candidate]; valid {
			return candidate
		}
	}
	return CategoryCodeQuality
}

// NormalizeSeverity maps any raw severity value into the fixed vocabulary,
// case-insensitively, defaulting to low.
func NormalizeSeverity(raw interface{}) string {
	if value, ok := raw.(string); ok {
		candidate := strings.ToLower(strings.TrimSpace(value))
		if _, valid := validSeverities[candidate]; valid {
			return candidate
		}
	}
	return SeverityLow
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag, from a model response.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		firstLine := strings.TrimSpace(trimmed[:newline])
		// A language tag occupies the rest of the fence line.
		if firstLine == "" || !strings.ContainsAny(firstLine, "[{") {
			trimmed = trimmed[newline+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}

// ParseFindings turns a raw model response into normalised feedback items for
// one file. Malformed, empty or non-array responses yield zero items and
// ok=false; a parseable array (even an empty one) yields ok=true. It never
// returns an error so one bad file cannot abort a submission.
func ParseFindings(content, filePath string) ([]FeedbackItem, bool) {
	stripped := stripCodeFence(content)
	if stripped == "" {
		return nil, false
	}

	var rawItems []map[string]interface{}
	if err := json.Unmarshal([]byte(stripped), &rawItems); err != nil {
		return nil, false
	}

	items := make([]FeedbackItem, 0, len(rawItems))
	for _, raw := range rawItems {
		if len(items) == maxItemsPerFile {
			break
		}
		items = append(items, normalizeItem(raw, filePath))
	}

	return items, true
}

func normalizeItem(raw map[string]interface{}, filePath string) FeedbackItem {
	item := FeedbackItem{
		FilePath: filePath,
		Category: NormalizeCategory(raw["category"]),
		Severity: NormalizeSeverity(raw["severity"]),
		Content:  normalizeContent(raw["content"]),
	}

	// Only a plain JSON number counts as a line; anything else stays absent.
	if number, ok := raw["line_number"].(float64); ok && !math.IsNaN(number) {
		line := int(number)
		item.LineNumber = &line
	}

	if suggestion, ok := raw["suggestion"].(string); ok {
		trimmed := strings.TrimSpace(suggestion)
		if trimmed != "" {
			item.Suggestion = &trimmed
		}
	}

	return item
}

func normalizeContent(raw interface{}) string {
	switch value := raw.(type) {
	case nil:
		return placeholderContent
	case string:
		if strings.TrimSpace(value) == "" {
			return placeholderContent
		}
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Score computes the deterministic 0-100 score for a feedback list: start at
// 100, subtract the per-severity penalty for every item, clamp.
func Score(items []FeedbackItem) int {
	score := 100
	for _, item := range items {
		penalty, known := severityPenalties[item.Severity]
		if !known {
			penalty = severityPenalties[SeverityLow]
		}
		score -= penalty
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// DetectLanguage guesses a display language from the file extension, for
// inclusion in the review prompt.
func DetectLanguage(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".go":
		return "Go"
	case ".js", ".jsx":
		return "JavaScript"
	case ".ts", ".tsx":
		return "TypeScript"
	case ".py":
		return "Python"
	case ".java":
		return "Java"
	case ".rb":
		return "Ruby"
	case ".php":
		return "PHP"
	case ".c", ".h":
		return "C"
	case ".cpp", ".hpp":
		return "C++"
	case ".cs":
		return "C#"
	case ".rs":
		return "Rust"
	case ".kt":
		return "Kotlin"
	case ".swift":
		return "Swift"
	case ".scala":
		return "Scala"
	case ".sql":
		return "SQL"
	case ".sh":
		return "Shell"
	case ".html":
		return "HTML"
	case ".css", ".scss":
		return "CSS"
	case ".vue":
		return "Vue"
	case ".svelte":
		return "Svelte"
	case ".json":
		return "JSON"
	case ".yaml", ".yml":
		return "YAML"
	case ".toml":
		return "TOML"
	case ".md":
		return "Markdown"
	default:
		return "plain text"
	}
}
