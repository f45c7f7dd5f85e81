package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kelasku-dev/kelasku-go-api/internal/dto"
	"github.com/kelasku-dev/kelasku-go-api/internal/models"
	"github.com/kelasku-dev/kelasku-go-api/internal/repository"
	"github.com/kelasku-dev/kelasku-go-api/pkg/ai"
	"github.com/kelasku-dev/kelasku-go-api/pkg/githubapi"
	"github.com/kelasku-dev/kelasku-go-api/pkg/retryutil"
)

type fakeSubmissionStore struct {
	mu          sync.Mutex
	submissions map[uint]models.Submission
}

func newFakeSubmissionStore(submissions ...models.Submission) *fakeSubmissionStore {
	store := &fakeSubmissionStore{submissions: make(map[uint]models.Submission)}
	for _, submission := range submissions {
		store.submissions[submission.ID] = submission
	}
	return store
}

func (f *fakeSubmissionStore) get(id uint) models.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[id]
}

func (f *fakeSubmissionStore) List(_ context.Context, _ repository.SubmissionFilter) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Submission, 0, len(f.submissions))
	for _, submission := range f.submissions {
		out = append(out, submission)
	}
	return out, nil
}

func (f *fakeSubmissionStore) GetByID(_ context.Context, id uint) (models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	submission, ok := f.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (f *fakeSubmissionStore) Create(_ context.Context, submission *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	submission.ID = uint(len(f.submissions) + 1)
	f.submissions[submission.ID] = *submission
	return nil
}

func (f *fakeSubmissionStore) FindByRepositoryURL(_ context.Context, repositoryURL, branch string) (models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, submission := range f.submissions {
		if !strings.EqualFold(submission.RepositoryURL, repositoryURL) {
			continue
		}
		if branch != "" && submission.Branch != nil && *submission.Branch != branch {
			continue
		}
		return submission, nil
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (f *fakeSubmissionStore) TryStartProcessing(_ context.Context, id uint, commitSHA string) (bool, models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	submission, ok := f.submissions[id]
	if !ok {
		return false, models.Submission{}, gorm.ErrRecordNotFound
	}
	if submission.Status == models.SubmissionStatusProcessing {
		return false, models.Submission{}, nil
	}

	submission.Status = models.SubmissionStatusProcessing
	submission.CommitSHA = commitSHA
	f.submissions[id] = submission
	return true, submission, nil
}

func (f *fakeSubmissionStore) MarkCompleted(_ context.Context, id uint) error {
	return f.setStatus(id, models.SubmissionStatusCompleted)
}

func (f *fakeSubmissionStore) MarkFailed(_ context.Context, id uint) error {
	return f.setStatus(id, models.SubmissionStatusFailed)
}

func (f *fakeSubmissionStore) setStatus(id uint, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	submission := f.submissions[id]
	submission.Status = status
	f.submissions[id] = submission
	return nil
}

func (f *fakeSubmissionStore) UpdateWithScore(_ context.Context, id uint, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	submission := f.submissions[id]
	submission.Status = models.SubmissionStatusAnalyzed
	submission.AIScore = &score
	f.submissions[id] = submission
	return nil
}

func (f *fakeSubmissionStore) ListFailedSince(_ context.Context, since time.Time) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Submission
	for _, submission := range f.submissions {
		if submission.Status == models.SubmissionStatusFailed && !submission.UpdatedAt.Before(since) {
			out = append(out, submission)
		}
	}
	return out, nil
}

type fakeFeedbackStore struct {
	mu    sync.Mutex
	items map[uint][]models.FeedbackItem
}

func newFakeFeedbackStore() *fakeFeedbackStore {
	return &fakeFeedbackStore{items: make(map[uint][]models.FeedbackItem)}
}

func (f *fakeFeedbackStore) ListBySubmission(_ context.Context, submissionID uint) ([]models.FeedbackItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[submissionID], nil
}

func (f *fakeFeedbackStore) ReplaceAIForSubmission(_ context.Context, submissionID uint, items []models.FeedbackItem) ([]models.FeedbackItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var kept []models.FeedbackItem
	for _, item := range f.items[submissionID] {
		if item.Reviewer != models.FeedbackReviewerAI {
			kept = append(kept, item)
		}
	}
	for i := range items {
		items[i].SubmissionID = submissionID
		items[i].Reviewer = models.FeedbackReviewerAI
	}
	f.items[submissionID] = append(kept, items...)
	return items, nil
}

type fakeDeliveryStore struct {
	mu         sync.Mutex
	deliveries []models.WebhookDelivery
}

func (f *fakeDeliveryStore) Create(_ context.Context, delivery *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, *delivery)
	return nil
}

func (f *fakeDeliveryStore) ListByRepository(_ context.Context, repository string, limit int) ([]models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.WebhookDelivery
	for _, delivery := range f.deliveries {
		if delivery.Repository == repository {
			out = append(out, delivery)
		}
	}
	return out, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fetch func(owner, repo, commitSHA string) ([]githubapi.ChangedFile, error)
}

func (f *fakeFetcher) FetchChangedFiles(_ context.Context, owner, repo, commitSHA string) ([]githubapi.ChangedFile, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fetch(owner, repo, commitSHA)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeReviewer struct {
	mu     sync.Mutex
	calls  int
	review func(files []ai.ReviewFile, settings ai.ReviewSettings) (ai.ReviewResult, error)
}

func (f *fakeReviewer) Review(_ context.Context, files []ai.ReviewFile, settings ai.ReviewSettings) (ai.ReviewResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.review(files, settings)
}

type fakeStatsCache struct {
	mu                     sync.Mutex
	invalidatedCourses     []uint
	invalidatedAssignments []uint
}

func (f *fakeStatsCache) GetJSON(_ context.Context, _ string, _ interface{}) (bool, error) {
	return false, nil
}

func (f *fakeStatsCache) SetJSON(_ context.Context, _ string, _ interface{}) error { return nil }

func (f *fakeStatsCache) InvalidateCourse(_ context.Context, courseID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidatedCourses = append(f.invalidatedCourses, courseID)
	return nil
}

func (f *fakeStatsCache) InvalidateAssignment(_ context.Context, assignmentID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidatedAssignments = append(f.invalidatedAssignments, assignmentID)
	return nil
}

type emittedUpdate struct {
	courseID uint
	event    string
	payload  interface{}
}

type fakeLiveUpdates struct {
	mu      sync.Mutex
	emitted []emittedUpdate
}

func (f *fakeLiveUpdates) Emit(_ context.Context, courseID uint, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, emittedUpdate{courseID: courseID, event: event, payload: payload})
}

func (f *fakeLiveUpdates) Subscribe(_ uint) (<-chan LiveUpdate, func()) {
	channel := make(chan LiveUpdate)
	return channel, func() {}
}

func (f *fakeLiveUpdates) Start(_ context.Context) {}

type pipelineFixture struct {
	submissions *fakeSubmissionStore
	feedback    *fakeFeedbackStore
	deliveries  *fakeDeliveryStore
	fetcher     *fakeFetcher
	reviewer    *fakeReviewer
	cache       *fakeStatsCache
	updates     *fakeLiveUpdates
	pipeline    ReviewPipelineService
}

func newPipelineFixture(t *testing.T, submissions ...models.Submission) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		submissions: newFakeSubmissionStore(submissions...),
		feedback:    newFakeFeedbackStore(),
		deliveries:  &fakeDeliveryStore{},
		fetcher:     &fakeFetcher{},
		reviewer:    &fakeReviewer{},
		cache:       &fakeStatsCache{},
		updates:     &fakeLiveUpdates{},
	}

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		return nil, nil
	}
	f.reviewer.review = func(_ []ai.ReviewFile, _ ai.ReviewSettings) (ai.ReviewResult, error) {
		return ai.ReviewResult{}, nil
	}

	f.pipeline = NewReviewPipelineService(
		f.submissions,
		f.feedback,
		f.deliveries,
		f.fetcher,
		f.reviewer,
		f.cache,
		f.updates,
		zerolog.Nop(),
		ReviewPipelineConfig{
			FetchTimeout:    time.Second,
			AnalysisTimeout: time.Second,
			FetchRetry:      retryutil.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
			AnalysisRetry:   retryutil.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		},
	)

	return f
}

func linkedSubmission() models.Submission {
	branch := "main"
	return models.Submission{
		ID:            1,
		AssignmentID:  7,
		StudentID:     3,
		RepositoryURL: "https://github.com/octo/webshop",
		Branch:        &branch,
		Status:        models.SubmissionStatusPending,
		WebhookSecret: "s3cret",
		Assignment: models.Assignment{
			ID:            7,
			CourseID:      5,
			GradingRubric: "Readability first.",
		},
	}
}

func pushPayload() dto.PushEventPayload {
	return dto.PushEventPayload{
		Ref:    "refs/heads/main",
		Before: "0000000000000000000000000000000000000000",
		After:  "abc123",
		Repository: dto.PushRepository{
			FullName: "octo/webshop",
		},
		Commits: []dto.PushCommit{{ID: "abc123"}},
	}
}

func intPtr(v int) *int { return &v }

func TestHandlePushAnalyzesAndScores(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	f.fetcher.fetch = func(owner, repo, commitSHA string) ([]githubapi.ChangedFile, error) {
		require.Equal(t, "octo", owner)
		require.Equal(t, "webshop", repo)
		require.Equal(t, "abc123", commitSHA)
		return []githubapi.ChangedFile{
			{Path: "cmd/main.go", Status: "modified", Content: "package main"},
			{Path: "internal/cart.go", Status: "added", Content: "package internal"},
		}, nil
	}
	f.reviewer.review = func(files []ai.ReviewFile, settings ai.ReviewSettings) (ai.ReviewResult, error) {
		require.Len(t, files, 2)
		require.Equal(t, "Readability first.", settings.GradingRubric)
		return ai.ReviewResult{
			FilesReviewed: 2,
			Items: []ai.FeedbackItem{
				{FilePath: "cmd/main.go", Category: ai.CategoryCodeQuality, Severity: ai.SeverityHigh, Content: "Unchecked error.", LineNumber: intPtr(12)},
				{FilePath: "internal/cart.go", Category: ai.CategoryStyle, Severity: ai.SeverityLow, Content: "Prefer a named constant."},
			},
		}, nil
	}

	payload := pushPayload()
	body := []byte(`{"ref":"refs/heads/main"}`)
	headers := dto.WebhookHeaders{
		Event:      "push",
		DeliveryID: "delivery-1",
		Signature:  githubapi.Sign(body, "s3cret"),
	}

	f.pipeline.HandlePush(context.Background(), "github", headers, body, payload)

	submission := f.submissions.get(1)
	require.Equal(t, models.SubmissionStatusAnalyzed, submission.Status)
	require.Equal(t, "abc123", submission.CommitSHA)
	require.NotNil(t, submission.AIScore)
	require.Equal(t, 88, *submission.AIScore)

	items, err := f.feedback.ListBySubmission(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.Equal(t, models.FeedbackReviewerAI, item.Reviewer)
	}

	require.Equal(t, []uint{5}, f.cache.invalidatedCourses)
	require.Equal(t, []uint{7}, f.cache.invalidatedAssignments)

	require.Len(t, f.updates.emitted, 1)
	require.Equal(t, uint(5), f.updates.emitted[0].courseID)
	require.Equal(t, EventSubmissionAnalyzed, f.updates.emitted[0].event)
	event, ok := f.updates.emitted[0].payload.(dto.SubmissionAnalyzedEvent)
	require.True(t, ok)
	require.Equal(t, uint(1), event.SubmissionID)
	require.Equal(t, 2, event.FeedbackCount)

	require.Len(t, f.deliveries.deliveries, 1)
	require.True(t, f.deliveries.deliveries[0].Handled)
}

func TestHandlePushUnlinkedRepositoryIgnored(t *testing.T) {
	f := newPipelineFixture(t)

	body := []byte(`{}`)
	headers := dto.WebhookHeaders{Event: "push", DeliveryID: "delivery-2", Signature: githubapi.Sign(body, "whatever")}

	f.pipeline.HandlePush(context.Background(), "github", headers, body, pushPayload())

	require.Zero(t, f.fetcher.callCount())
	require.Len(t, f.deliveries.deliveries, 1)
	require.False(t, f.deliveries.deliveries[0].Handled)
}

func TestHandlePushBadSignatureDropped(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	body := []byte(`{"ref":"refs/heads/main"}`)
	headers := dto.WebhookHeaders{
		Event:      "push",
		DeliveryID: "delivery-3",
		Signature:  githubapi.Sign(body, "wrong-secret"),
	}

	f.pipeline.HandlePush(context.Background(), "github", headers, body, pushPayload())

	require.Zero(t, f.fetcher.callCount())
	require.Equal(t, models.SubmissionStatusPending, f.submissions.get(1).Status)
	require.Len(t, f.deliveries.deliveries, 1)
	require.False(t, f.deliveries.deliveries[0].Handled)
}

func TestProcessNoAnalysableFilesCompletes(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		return nil, nil
	}

	f.pipeline.Process(context.Background(), 1, "abc123")

	submission := f.submissions.get(1)
	require.Equal(t, models.SubmissionStatusCompleted, submission.Status)
	require.Nil(t, submission.AIScore)
	require.Zero(t, f.reviewer.calls)
	require.Empty(t, f.updates.emitted)
}

func TestProcessSkipsWhenClaimHeld(t *testing.T) {
	submission := linkedSubmission()
	submission.Status = models.SubmissionStatusProcessing
	f := newPipelineFixture(t, submission)

	f.pipeline.Process(context.Background(), 1, "def456")

	require.Zero(t, f.fetcher.callCount())
	require.Equal(t, models.SubmissionStatusProcessing, f.submissions.get(1).Status)
}

func TestProcessFetchExhaustsRetries(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		return nil, &githubapi.APIError{StatusCode: 503, Message: "unavailable"}
	}

	f.pipeline.Process(context.Background(), 1, "abc123")

	require.Equal(t, 2, f.fetcher.callCount())
	require.Equal(t, models.SubmissionStatusFailed, f.submissions.get(1).Status)
	require.Empty(t, f.updates.emitted)
}

func TestProcessNonRetryableFetchFailsFast(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		return nil, &githubapi.APIError{StatusCode: 404, Message: "commit not found"}
	}

	f.pipeline.Process(context.Background(), 1, "abc123")

	require.Equal(t, 1, f.fetcher.callCount())
	require.Equal(t, models.SubmissionStatusFailed, f.submissions.get(1).Status)
}

func TestProcessAllFilesFailedMarksFailed(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		return []githubapi.ChangedFile{{Path: "main.go", Content: "package main"}}, nil
	}
	f.reviewer.review = func(_ []ai.ReviewFile, _ ai.ReviewSettings) (ai.ReviewResult, error) {
		return ai.ReviewResult{FilesReviewed: 0, FilesFailed: 1}, nil
	}

	f.pipeline.Process(context.Background(), 1, "abc123")

	require.Equal(t, models.SubmissionStatusFailed, f.submissions.get(1).Status)
	require.Empty(t, f.updates.emitted)
}

func TestProcessReplacesEarlierFindings(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	_, err := f.feedback.ReplaceAIForSubmission(context.Background(), 1, []models.FeedbackItem{
		{Category: models.FeedbackCategoryCodeQuality, Severity: models.FeedbackSeverityCritical, Content: "stale"},
	})
	require.NoError(t, err)

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		return []githubapi.ChangedFile{{Path: "main.go", Content: "package main"}}, nil
	}
	f.reviewer.review = func(_ []ai.ReviewFile, _ ai.ReviewSettings) (ai.ReviewResult, error) {
		return ai.ReviewResult{
			FilesReviewed: 1,
			Items: []ai.FeedbackItem{
				{FilePath: "main.go", Category: ai.CategorySecurity, Severity: ai.SeverityMedium, Content: "fresh"},
			},
		}, nil
	}

	f.pipeline.Process(context.Background(), 1, "abc123")

	items, err := f.feedback.ListBySubmission(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "fresh", items[0].Content)

	submission := f.submissions.get(1)
	require.Equal(t, models.SubmissionStatusAnalyzed, submission.Status)
	require.Equal(t, 95, *submission.AIScore)
}

func TestProcessSanitizesFindingContent(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		return []githubapi.ChangedFile{{Path: "main.go", Content: "package main"}}, nil
	}
	suggestion := `<img src=x onerror=alert(1)>use errors.Is`
	f.reviewer.review = func(_ []ai.ReviewFile, _ ai.ReviewSettings) (ai.ReviewResult, error) {
		return ai.ReviewResult{
			FilesReviewed: 1,
			Items: []ai.FeedbackItem{
				{FilePath: "main.go", Category: ai.CategorySecurity, Severity: ai.SeverityLow, Content: `<script>alert(1)</script>injected`, Suggestion: &suggestion},
			},
		}, nil
	}

	f.pipeline.Process(context.Background(), 1, "abc123")

	items, err := f.feedback.ListBySubmission(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotContains(t, items[0].Content, "<script>")
	require.Contains(t, items[0].Content, "injected")
	require.NotNil(t, items[0].Suggestion)
	require.NotContains(t, *items[0].Suggestion, "onerror")
}

func TestProcessConcurrentDeliveriesSingleWinner(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.pipeline.Process(context.Background(), 1, "abc123")
	}()

	<-started

	// The claim is held; every concurrent delivery must bail before fetching.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.pipeline.Process(context.Background(), 1, "abc123")
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, f.fetcher.callCount())
	require.Equal(t, models.SubmissionStatusCompleted, f.submissions.get(1).Status)
}

func TestRetryValidation(t *testing.T) {
	submission := linkedSubmission()
	submission.Status = models.SubmissionStatusFailed
	f := newPipelineFixture(t, submission)

	got, err := f.pipeline.Retry(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint(1), got.ID)

	_, err = f.pipeline.Retry(context.Background(), 99)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	require.NoError(t, f.submissions.setStatus(1, models.SubmissionStatusProcessing))
	_, err = f.pipeline.Retry(context.Background(), 1)
	require.ErrorIs(t, err, ErrAlreadyProcessing)
}

func TestListFailedWindowClamped(t *testing.T) {
	recent := linkedSubmission()
	recent.Status = models.SubmissionStatusFailed
	recent.UpdatedAt = time.Now().Add(-30 * time.Minute)

	old := linkedSubmission()
	old.ID = 2
	old.Status = models.SubmissionStatusFailed
	old.UpdatedAt = time.Now().Add(-30 * 24 * time.Hour)

	f := newPipelineFixture(t, recent, old)

	// Sub-hour windows are widened to one hour, so the recent failure shows.
	failed, err := f.pipeline.ListFailed(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, uint(1), failed[0].ID)

	// Oversized windows are capped at seven days; month-old failures stay out.
	failed, err = f.pipeline.ListFailed(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestProcessRecoversFromPanic(t *testing.T) {
	f := newPipelineFixture(t, linkedSubmission())

	f.fetcher.fetch = func(_, _, _ string) ([]githubapi.ChangedFile, error) {
		panic("boom")
	}

	require.NotPanics(t, func() {
		f.pipeline.Process(context.Background(), 1, "abc123")
	})
	require.Equal(t, models.SubmissionStatusFailed, f.submissions.get(1).Status)
}
