package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kelasku-dev/kelasku-go-api/internal/dto"
	"github.com/kelasku-dev/kelasku-go-api/internal/models"
	"github.com/kelasku-dev/kelasku-go-api/internal/repository"
	"github.com/kelasku-dev/kelasku-go-api/pkg/githubapi"
)

// ErrAssignmentNotFound indicates the referenced assignment does not exist.
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrStudentNotFound indicates the referenced student does not exist.
var ErrStudentNotFound = errors.New("student not found")

// ErrInvalidRepositoryURL indicates the repository link is not analysable.
var ErrInvalidRepositoryURL = errors.New("repository url is not a github repository")

// SubmissionService owns the user-facing submission surface: linking a
// repository to an assignment and reading back analysis results. Pipeline
// state (status, commit, score) is never writable from here.
type SubmissionService interface {
	Link(ctx context.Context, payload dto.SubmissionLinkRequest) (dto.SubmissionLinkResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	GetFeedback(ctx context.Context, id uint) (dto.SubmissionFeedbackResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	students    repository.StudentRepository
	feedback    repository.FeedbackRepository
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(subRepo repository.SubmissionRepository, assignmentRepo repository.AssignmentRepository, studentRepo repository.StudentRepository, feedbackRepo repository.FeedbackRepository, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: subRepo,
		assignments: assignmentRepo,
		students:    studentRepo,
		feedback:    feedbackRepo,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Link(ctx context.Context, payload dto.SubmissionLinkRequest) (dto.SubmissionLinkResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionLinkResponse{}, err
	}

	owner, repo, err := githubapi.SplitRepositoryURL(payload.RepositoryURL)
	if err != nil {
		return dto.SubmissionLinkResponse{}, ErrInvalidRepositoryURL
	}

	if _, err := s.assignments.GetByID(ctx, payload.AssignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionLinkResponse{}, ErrAssignmentNotFound
		}
		return dto.SubmissionLinkResponse{}, err
	}

	if _, err := s.students.GetByID(ctx, payload.StudentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionLinkResponse{}, ErrStudentNotFound
		}
		return dto.SubmissionLinkResponse{}, err
	}

	submission := models.Submission{
		AssignmentID:  payload.AssignmentID,
		StudentID:     payload.StudentID,
		RepositoryURL: githubapi.CanonicalRepositoryURL(owner + "/" + repo),
		Status:        models.SubmissionStatusPending,
		WebhookSecret: newWebhookSecret(),
	}
	if branch := strings.TrimSpace(payload.Branch); branch != "" {
		submission.Branch = &branch
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionLinkResponse{}, err
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assignment_id", submission.AssignmentID).
		Str("repository_url", submission.RepositoryURL).
		Msg("repository linked")

	return dto.SubmissionLinkResponse{
		SubmissionResponse: dto.NewSubmissionResponse(submission),
		WebhookSecret:      submission.WebhookSecret,
	}, nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		AssignmentID: filter.AssignmentID,
		StudentID:    filter.StudentID,
		Status:       filter.Status,
	})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, dto.NewSubmissionResponse(submission))
	}

	return responses, nil
}

func (s *submissionService) GetFeedback(ctx context.Context, id uint) (dto.SubmissionFeedbackResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionFeedbackResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionFeedbackResponse{}, err
	}

	items, err := s.feedback.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionFeedbackResponse{}, err
	}

	responses := make([]dto.FeedbackItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, dto.NewFeedbackItemResponse(item))
	}

	return dto.SubmissionFeedbackResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		AIScore:      submission.AIScore,
		Items:        responses,
	}, nil
}

// newWebhookSecret generates the shared secret registered with the code
// host's webhook. It is immutable after creation.
func newWebhookSecret() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
