package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/kelasku-dev/kelasku-go-api/internal/dto"
	"github.com/kelasku-dev/kelasku-go-api/internal/handler"
)

type stubSubmissionService struct {
	feedback dto.SubmissionFeedbackResponse
}

func (s stubSubmissionService) Link(context.Context, dto.SubmissionLinkRequest) (dto.SubmissionLinkResponse, error) {
	return dto.SubmissionLinkResponse{}, nil
}

func (s stubSubmissionService) List(context.Context, dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	return nil, nil
}

func (s stubSubmissionService) GetFeedback(context.Context, uint) (dto.SubmissionFeedbackResponse, error) {
	return s.feedback, nil
}

func TestSubmissionFeedbackContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "submission_feedback.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	now := time.Now().UTC()
	line := 42
	suggestion := "Wrap the error with context before returning."
	score := 85

	svc := stubSubmissionService{
		feedback: dto.SubmissionFeedbackResponse{
			SubmissionID: 7,
			Status:       "analyzed",
			AIScore:      &score,
			Items: []dto.FeedbackItemResponse{
				{
					ID:         1,
					Reviewer:   "ai",
					Category:   "code_quality",
					Severity:   "high",
					Content:    "Errors from the repository layer are silently discarded.",
					FilePath:   "internal/store/user.go",
					LineNumber: &line,
					Suggestion: &suggestion,
					CreatedAt:  now,
				},
				{
					ID:        2,
					Reviewer:  "teacher",
					Category:  "style",
					Severity:  "low",
					Content:   "Prefer table-driven tests here.",
					CreatedAt: now,
				},
			},
		},
	}

	submissionHandler := handler.NewSubmissionHandler(svc, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1/submissions", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(1))
		return c.Next()
	})
	submissionHandler.Register(group)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/7/feedback", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
