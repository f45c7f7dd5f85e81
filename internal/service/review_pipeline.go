package service

import (
	"context"
	"errors"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kelasku-dev/kelasku-go-api/internal/dto"
	"github.com/kelasku-dev/kelasku-go-api/internal/models"
	"github.com/kelasku-dev/kelasku-go-api/internal/observability"
	"github.com/kelasku-dev/kelasku-go-api/internal/repository"
	"github.com/kelasku-dev/kelasku-go-api/pkg/ai"
	"github.com/kelasku-dev/kelasku-go-api/pkg/githubapi"
	"github.com/kelasku-dev/kelasku-go-api/pkg/retryutil"
)

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrAlreadyProcessing indicates an analysis round currently holds the claim.
var ErrAlreadyProcessing = errors.New("submission is already processing")

// EventSubmissionAnalyzed is broadcast to course subscribers after feedback
// for a submission has been replaced.
const EventSubmissionAnalyzed = "submission_analyzed"

// SourceFetcher retrieves the analysable files touched by one commit.
type SourceFetcher interface {
	FetchChangedFiles(ctx context.Context, owner, repo, commitSHA string) ([]githubapi.ChangedFile, error)
}

// ReviewPipelineConfig carries the pipeline's timeouts and retry budgets.
type ReviewPipelineConfig struct {
	// FetchTimeout bounds one source-fetch attempt; AnalysisTimeout bounds
	// one whole-batch analysis attempt. Both are far below the webhook
	// response, which returns before processing starts.
	FetchTimeout    time.Duration
	AnalysisTimeout time.Duration
	FetchRetry      retryutil.Config
	AnalysisRetry   retryutil.Config
	// FailedWindow is the default recency window for the failed listing.
	FailedWindow time.Duration
}

func (c ReviewPipelineConfig) withDefaults() ReviewPipelineConfig {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.AnalysisTimeout <= 0 {
		c.AnalysisTimeout = 2 * time.Minute
	}
	if c.FailedWindow <= 0 {
		c.FailedWindow = 24 * time.Hour
	}
	return c
}

// ReviewPipelineService drives a submission from an authenticated push to
// persisted, scored feedback. HandlePush and Process are invoked after the
// webhook response has been sent; they log failures and update submission
// state but never propagate errors to a caller.
type ReviewPipelineService interface {
	// HandlePush authenticates and processes one push delivery end to end.
	HandlePush(ctx context.Context, provider string, headers dto.WebhookHeaders, rawBody []byte, payload dto.PushEventPayload)

	// Retry validates that a manual retry is admissible and returns the
	// submission to re-process. The caller runs Process asynchronously.
	Retry(ctx context.Context, submissionID uint) (models.Submission, error)

	// Process runs one analysis round: claim, fetch, analyse, persist, notify.
	Process(ctx context.Context, submissionID uint, commitSHA string)

	// ListFailed returns failed submissions updated within the window.
	ListFailed(ctx context.Context, maxAge time.Duration) ([]dto.FailedSubmissionResponse, error)
}

type reviewPipeline struct {
	submissions repository.SubmissionRepository
	feedback    repository.FeedbackRepository
	deliveries  repository.WebhookDeliveryRepository
	fetcher     SourceFetcher
	reviewer    ai.Reviewer
	cache       StatsCache
	updates     LiveUpdateService
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	config      ReviewPipelineConfig
}

// NewReviewPipelineService constructs the pipeline. Cache and updates may be
// nil; their notifications are best-effort side effects.
func NewReviewPipelineService(
	submissions repository.SubmissionRepository,
	feedback repository.FeedbackRepository,
	deliveries repository.WebhookDeliveryRepository,
	fetcher SourceFetcher,
	reviewer ai.Reviewer,
	cache StatsCache,
	updates LiveUpdateService,
	logger zerolog.Logger,
	cfg ReviewPipelineConfig,
) ReviewPipelineService {
	return &reviewPipeline{
		submissions: submissions,
		feedback:    feedback,
		deliveries:  deliveries,
		fetcher:     fetcher,
		reviewer:    reviewer,
		cache:       cache,
		updates:     updates,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "review_pipeline").Logger(),
		tracer:      otel.Tracer("github.com/kelasku-dev/kelasku-go-api/internal/service/review_pipeline"),
		config:      cfg.withDefaults(),
	}
}

func (s *reviewPipeline) HandlePush(ctx context.Context, provider string, headers dto.WebhookHeaders, rawBody []byte, payload dto.PushEventPayload) {
	logger := s.logger.With().
		Str("provider", provider).
		Str("delivery_id", headers.DeliveryID).
		Str("repository", payload.Repository.FullName).
		Logger()

	repositoryURL := githubapi.CanonicalRepositoryURL(payload.Repository.FullName)
	branch := payload.Branch()

	submission, err := s.submissions.FindByRepositoryURL(ctx, repositoryURL, branch)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Expected often: pushes to repositories nobody linked.
			logger.Debug().Str("branch", branch).Msg("push for unlinked repository ignored")
			s.recordDelivery(ctx, provider, headers, payload, false)
			observability.WebhookDeliveries().WithLabelValues(provider, "no_submission").Inc()
			return
		}
		logger.Error().Err(err).Msg("submission lookup failed")
		s.recordDelivery(ctx, provider, headers, payload, false)
		return
	}

	if !githubapi.VerifySignature(rawBody, headers.Signature, submission.WebhookSecret) {
		logger.Warn().Uint("submission_id", submission.ID).Msg("webhook signature verification failed, dropping delivery")
		s.recordDelivery(ctx, provider, headers, payload, false)
		observability.WebhookDeliveries().WithLabelValues(provider, "bad_signature").Inc()
		return
	}

	s.recordDelivery(ctx, provider, headers, payload, true)
	observability.WebhookDeliveries().WithLabelValues(provider, "accepted").Inc()

	s.Process(ctx, submission.ID, payload.After)
}

func (s *reviewPipeline) Retry(ctx context.Context, submissionID uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}

	if submission.IsProcessing() {
		return models.Submission{}, ErrAlreadyProcessing
	}

	return submission, nil
}

func (s *reviewPipeline) ListFailed(ctx context.Context, maxAge time.Duration) ([]dto.FailedSubmissionResponse, error) {
	if maxAge <= 0 {
		maxAge = s.config.FailedWindow
	}
	if maxAge < time.Hour {
		maxAge = time.Hour
	}
	if maxAge > 7*24*time.Hour {
		maxAge = 7 * 24 * time.Hour
	}

	submissions, err := s.submissions.ListFailedSince(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return nil, err
	}

	responses := make([]dto.FailedSubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, dto.NewFailedSubmissionResponse(submission))
	}

	return responses, nil
}

// Process is the shared path behind live pushes and manual retries. It runs
// after the HTTP response went out, so every failure is absorbed here: the
// submission ends in a terminal status and the error ends in the log.
func (s *reviewPipeline) Process(parent context.Context, submissionID uint, commitSHA string) {
	ctx, span := s.tracer.Start(parent, "pipeline.process", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
		attribute.String("commit.sha", commitSHA),
	))
	defer span.End()

	logger := s.logger.With().
		Uint("submission_id", submissionID).
		Str("commit_sha", commitSHA).
		Logger()

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error().Interface("panic", recovered).Msg("pipeline panicked, marking submission failed")
			s.markFailed(ctx, submissionID, logger)
			observability.PipelineRounds().WithLabelValues("panic").Inc()
		}
	}()

	claimed, submission, err := s.submissions.TryStartProcessing(ctx, submissionID, commitSHA)
	if err != nil {
		logger.Error().Err(err).Msg("claim attempt failed")
		return
	}
	if !claimed {
		// A concurrent delivery or retry won the claim; this is not an error.
		logger.Info().Msg("submission already processing, skipping")
		observability.PipelineRounds().WithLabelValues("lost_claim").Inc()
		return
	}

	start := time.Now()
	outcome := s.runRound(ctx, submission, logger)
	observability.PipelineRounds().WithLabelValues(outcome).Inc()
	observability.PipelineDuration().WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (s *reviewPipeline) runRound(ctx context.Context, submission models.Submission, logger zerolog.Logger) string {
	owner, repo, err := githubapi.SplitRepositoryURL(submission.RepositoryURL)
	if err != nil {
		logger.Error().Err(err).Str("repository_url", submission.RepositoryURL).Msg("unparseable repository url")
		s.markFailed(ctx, submission.ID, logger)
		return "failed"
	}

	files, err := s.fetchFiles(ctx, owner, repo, submission.CommitSHA, logger)
	if err != nil {
		logger.Error().Err(err).Msg("source fetch failed, marking submission failed")
		s.markFailed(ctx, submission.ID, logger)
		return "failed"
	}

	if len(files) == 0 {
		// Nothing analysable in the push; not a failure.
		logger.Info().Msg("no analysable files in commit, completing without analysis")
		if err := s.submissions.MarkCompleted(ctx, submission.ID); err != nil {
			logger.Error().Err(err).Msg("failed to mark submission completed")
		}
		return "completed"
	}

	result, err := s.analyzeFiles(ctx, files, submission.Assignment, logger)
	if err != nil {
		logger.Error().Err(err).Msg("analysis failed, marking submission failed")
		s.markFailed(ctx, submission.ID, logger)
		return "failed"
	}

	if result.AllFilesFailed() {
		logger.Error().Int("files", len(files)).Msg("no file produced a usable review, marking submission failed")
		s.markFailed(ctx, submission.ID, logger)
		return "failed"
	}

	score := ai.Score(result.Items)

	saved, err := s.feedback.ReplaceAIForSubmission(ctx, submission.ID, s.toFeedbackModels(result.Items))
	if err != nil {
		logger.Error().Err(err).Msg("feedback persistence failed, marking submission failed")
		s.markFailed(ctx, submission.ID, logger)
		return "failed"
	}

	if err := s.submissions.UpdateWithScore(ctx, submission.ID, score); err != nil {
		logger.Error().Err(err).Msg("failed to store score")
		s.markFailed(ctx, submission.ID, logger)
		return "failed"
	}

	logger.Info().Int("score", score).Int("findings", len(saved)).Msg("submission analysed")
	s.notify(ctx, submission, saved, logger)
	return "analyzed"
}

func (s *reviewPipeline) fetchFiles(ctx context.Context, owner, repo, commitSHA string, logger zerolog.Logger) ([]githubapi.ChangedFile, error) {
	cfg := s.config.FetchRetry
	cfg.IsRetryable = githubapi.IsRetryable
	cfg.OnRetry = func(attempt uint64, err error) {
		logger.Warn().Err(err).Uint64("attempt", attempt).Msg("retrying source fetch")
	}

	var files []githubapi.ChangedFile
	err := retryutil.Do(ctx, cfg, func(rctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(rctx, s.config.FetchTimeout)
		defer cancel()

		fetched, fetchErr := s.fetcher.FetchChangedFiles(attemptCtx, owner, repo, commitSHA)
		if fetchErr != nil {
			return fetchErr
		}
		files = fetched
		return nil
	})

	return files, err
}

func (s *reviewPipeline) analyzeFiles(ctx context.Context, files []githubapi.ChangedFile, assignment models.Assignment, logger zerolog.Logger) (ai.ReviewResult, error) {
	reviewFiles := make([]ai.ReviewFile, 0, len(files))
	for _, file := range files {
		reviewFiles = append(reviewFiles, ai.ReviewFile{Path: file.Path, Content: file.Content})
	}

	settings := ai.ReviewSettings{
		GradingRubric: assignment.GradingRubric,
		GuidanceText:  assignment.GuidanceText,
	}

	cfg := s.config.AnalysisRetry
	cfg.IsRetryable = ai.IsRetryable
	cfg.OnRetry = func(attempt uint64, err error) {
		logger.Warn().Err(err).Uint64("attempt", attempt).Msg("retrying analysis batch")
	}

	var result ai.ReviewResult
	err := retryutil.Do(ctx, cfg, func(rctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(rctx, s.config.AnalysisTimeout)
		defer cancel()

		reviewed, reviewErr := s.reviewer.Review(attemptCtx, reviewFiles, settings)
		if reviewErr != nil {
			return reviewErr
		}
		result = reviewed
		return nil
	})

	return result, err
}

func (s *reviewPipeline) toFeedbackModels(items []ai.FeedbackItem) []models.FeedbackItem {
	feedback := make([]models.FeedbackItem, 0, len(items))
	for _, item := range items {
		model := models.FeedbackItem{
			Category:   item.Category,
			Severity:   item.Severity,
			Content:    s.sanitizer.Sanitize(item.Content),
			FilePath:   item.FilePath,
			LineNumber: item.LineNumber,
		}
		if item.Suggestion != nil {
			clean := s.sanitizer.Sanitize(*item.Suggestion)
			model.Suggestion = &clean
		}
		feedback = append(feedback, model)
	}
	return feedback
}

// notify fires the post-persist side effects. They are best-effort: a failed
// cache invalidation or broadcast is logged and forgotten, never rolled back
// into the feedback write.
func (s *reviewPipeline) notify(ctx context.Context, submission models.Submission, items []models.FeedbackItem, logger zerolog.Logger) {
	courseID := submission.Assignment.CourseID

	if s.cache != nil {
		if err := s.cache.InvalidateCourse(ctx, courseID); err != nil {
			logger.Warn().Err(err).Uint("course_id", courseID).Msg("course cache invalidation failed")
		}
		if err := s.cache.InvalidateAssignment(ctx, submission.AssignmentID); err != nil {
			logger.Warn().Err(err).Uint("assignment_id", submission.AssignmentID).Msg("assignment cache invalidation failed")
		}
	}

	if s.updates != nil {
		s.updates.Emit(ctx, courseID, EventSubmissionAnalyzed, dto.SubmissionAnalyzedEvent{
			SubmissionID:  submission.ID,
			StudentID:     submission.StudentID,
			AssignmentID:  submission.AssignmentID,
			FeedbackCount: len(items),
			MeanSeverity:  meanSeverityWeight(items),
		})
	}
}

func (s *reviewPipeline) markFailed(ctx context.Context, submissionID uint, logger zerolog.Logger) {
	if err := s.submissions.MarkFailed(ctx, submissionID); err != nil {
		logger.Error().Err(err).Msg("failed to mark submission failed")
	}
}

func (s *reviewPipeline) recordDelivery(ctx context.Context, provider string, headers dto.WebhookHeaders, payload dto.PushEventPayload, handled bool) {
	if s.deliveries == nil {
		return
	}

	delivery := models.WebhookDelivery{
		Provider:   provider,
		DeliveryID: headers.DeliveryID,
		Event:      headers.Event,
		Repository: payload.Repository.FullName,
		Handled:    handled,
		Summary: datatypes.JSONMap{
			"ref":     payload.Ref,
			"before":  payload.Before,
			"after":   payload.After,
			"commits": len(payload.Commits),
		},
	}

	if err := s.deliveries.Create(ctx, &delivery); err != nil {
		s.logger.Warn().Err(err).Str("delivery_id", headers.DeliveryID).Msg("failed to record webhook delivery")
	}
}

func meanSeverityWeight(items []models.FeedbackItem) float64 {
	if len(items) == 0 {
		return 0
	}

	total := 0
	for _, item := range items {
		total += models.SeverityWeight(item.Severity)
	}

	return float64(total) / float64(len(items))
}
