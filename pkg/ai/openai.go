package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	reviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kelasku",
		Subsystem: "ai",
		Name:      "review_duration_seconds",
		Help:      "Duration of per-file AI review requests",
	}, []string{"model"})

	reviewFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kelasku",
		Subsystem: "ai",
		Name:      "review_failures_total",
		Help:      "Number of per-file AI review failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI reviewer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	// FileDelay is the pause between per-file calls, to stay under upstream
	// rate limits. Files are reviewed sequentially, never in parallel.
	FileDelay time.Duration
	Logger    zerolog.Logger
}

// OpenAIReviewer implements Reviewer against the OpenAI chat completion API.
type OpenAIReviewer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIReviewer builds a new reviewer using the provided configuration.
func NewOpenAIReviewer(cfg OpenAIConfig) (*OpenAIReviewer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	if cfg.FileDelay == 0 {
		cfg.FileDelay = 500 * time.Millisecond
	}

	tracer := otel.Tracer("github.com/kelasku-dev/kelasku-go-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIReviewer{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "openai_reviewer").Logger(),
	}, nil
}

// Review sends each file to the model sequentially and aggregates the
// normalised findings. A file whose call fails with a non-retryable error, or
// whose response does not parse, contributes zero findings; a retryable call
// failure aborts the batch so the caller's retry policy can re-run it whole.
func (r *OpenAIReviewer) Review(parent context.Context, files []ReviewFile, settings ReviewSettings) (ReviewResult, error) {
	ctx, span := r.tracer.Start(parent, "openai.review", trace.WithAttributes(
		attribute.String("model", r.cfg.Model),
		attribute.Int("files", len(files)),
	))
	defer span.End()

	result := ReviewResult{}
	for i, file := range files {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ReviewResult{}, ctx.Err()
			case <-time.After(r.cfg.FileDelay):
			}
		}

		items, parsed, err := r.reviewFile(ctx, file, settings)
		if err != nil {
			if IsRetryable(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return ReviewResult{}, err
			}
			r.logger.Warn().Err(err).Str("path", file.Path).Msg("file review failed, continuing without findings")
			result.FilesFailed++
			continue
		}
		if !parsed {
			r.logger.Warn().Str("path", file.Path).Msg("unparseable review response, continuing without findings")
			result.FilesFailed++
			continue
		}

		result.FilesReviewed++
		result.Items = append(result.Items, items...)
	}

	span.SetAttributes(attribute.Int("findings", len(result.Items)))
	return result, nil
}

func (r *OpenAIReviewer) reviewFile(ctx context.Context, file ReviewFile, settings ReviewSettings) ([]FeedbackItem, bool, error) {
	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: reviewerSystemPrompt(settings),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildFilePrompt(file),
			},
		},
	}

	resp, err := r.client.CreateChatCompletion(ctx, request)
	reviewDuration.WithLabelValues(r.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		reviewFailures.WithLabelValues(r.cfg.Model).Inc()
		return nil, false, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		reviewFailures.WithLabelValues(r.cfg.Model).Inc()
		return nil, false, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	items, parsed := ParseFindings(content, file.Path)
	if !parsed {
		reviewFailures.WithLabelValues(r.cfg.Model).Inc()
	}

	return items, parsed, nil
}

func reviewerSystemPrompt(settings ReviewSettings) string {
	builder := strings.Builder{}
	builder.WriteString("You are an experienced code reviewer for a programming course. ")
	builder.WriteString("Review the submitted file and report concrete findings as a JSON array. ")
	builder.WriteString("Each element must be an object with: category (one of code_quality, bug, security, performance, style, documentation, testing), ")
	builder.WriteString("severity (one of low, medium, high, critical), content (the finding itself), ")
	builder.WriteString("optional line_number (integer) and optional suggestion (how to improve). ")
	builder.WriteString("Return at most 10 findings, most important first. Return only the JSON array, no prose.")

	if settings.GradingRubric != "" {
		builder.WriteString("\n\nGrading rubric for this assignment:\n")
		builder.WriteString(settings.GradingRubric)
	}
	if settings.GuidanceText != "" {
		builder.WriteString("\n\nAdditional guidance:\n")
		builder.WriteString(settings.GuidanceText)
	}

	return builder.String()
}

func buildFilePrompt(file ReviewFile) string {
	builder := strings.Builder{}
	builder.WriteString("## File\n")
	builder.WriteString(file.Path)
	builder.WriteString("\n\n## Language\n")
	builder.WriteString(DetectLanguage(file.Path))
	builder.WriteString("\n\n## Content\n")
	builder.WriteString(file.Content)
	return builder.String()
}
