package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/kelasku-dev/kelasku-go-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	Status       *string
}

// SubmissionRepository defines data operations for submissions. The status,
// commit and score mutators are reserved for the review pipeline; user-facing
// edits never go through them.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error

	// FindByRepositoryURL locates the one submission a push concerns: exact
	// URL match first, case-insensitive fallback second, preferring a
	// branch-tagged record over branch-less ones, most recently updated wins.
	FindByRepositoryURL(ctx context.Context, repositoryURL, branch string) (models.Submission, error)

	// TryStartProcessing atomically claims the submission for one analysis
	// round. The update only applies while the stored status is not already
	// processing, so concurrent deliveries produce exactly one claimant.
	TryStartProcessing(ctx context.Context, id uint, commitSHA string) (bool, models.Submission, error)

	MarkCompleted(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint) error
	UpdateWithScore(ctx context.Context, id uint, score int) error

	ListFailedSince(ctx context.Context, since time.Time) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Student")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("created_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) FindByRepositoryURL(ctx context.Context, repositoryURL, branch string) (models.Submission, error) {
	submission, err := r.findByURL(ctx, "repository_url = ?", repositoryURL, branch)
	if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
		return submission, err
	}

	// Historical rows were stored with inconsistent casing.
	return r.findByURL(ctx, "LOWER(repository_url) = LOWER(?)", repositoryURL, branch)
}

func (r *submissionRepository) findByURL(ctx context.Context, condition, repositoryURL, branch string) (models.Submission, error) {
	if branch != "" {
		var submission models.Submission
		err := r.baseQuery(ctx).
			Where(condition, repositoryURL).
			Where("branch = ?", branch).
			Order("updated_at DESC").
			First(&submission).Error
		if err == nil {
			return submission, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, err
		}

		// Submissions created before branch tracking have no branch; they
		// still receive pushes for any ref.
		err = r.baseQuery(ctx).
			Where(condition, repositoryURL).
			Where("branch IS NULL").
			Order("updated_at DESC").
			First(&submission).Error
		return submission, err
	}

	var submission models.Submission
	err := r.baseQuery(ctx).
		Where(condition, repositoryURL).
		Order("updated_at DESC").
		First(&submission).Error
	return submission, err
}

func (r *submissionRepository) TryStartProcessing(ctx context.Context, id uint, commitSHA string) (bool, models.Submission, error) {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status <> ?", id, models.SubmissionStatusProcessing).
		Updates(map[string]interface{}{
			"status":     models.SubmissionStatusProcessing,
			"commit_sha": commitSHA,
		})
	if result.Error != nil {
		return false, models.Submission{}, result.Error
	}
	if result.RowsAffected == 0 {
		return false, models.Submission{}, nil
	}

	submission, err := r.GetByID(ctx, id)
	if err != nil {
		return false, models.Submission{}, err
	}

	return true, submission, nil
}

func (r *submissionRepository) MarkCompleted(ctx context.Context, id uint) error {
	return r.updateStatus(ctx, id, models.SubmissionStatusCompleted)
}

func (r *submissionRepository) MarkFailed(ctx context.Context, id uint) error {
	return r.updateStatus(ctx, id, models.SubmissionStatusFailed)
}

func (r *submissionRepository) updateStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *submissionRepository) UpdateWithScore(ctx context.Context, id uint, score int) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   models.SubmissionStatusAnalyzed,
			"ai_score": score,
		}).Error
}

func (r *submissionRepository) ListFailedSince(ctx context.Context, since time.Time) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.baseQuery(ctx).
		Where("status = ?", models.SubmissionStatusFailed).
		Where("updated_at >= ?", since).
		Order("updated_at DESC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}

	return submissions, nil
}
