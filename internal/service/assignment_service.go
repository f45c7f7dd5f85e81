package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kelasku-dev/kelasku-go-api/internal/dto"
	"github.com/kelasku-dev/kelasku-go-api/internal/models"
	"github.com/kelasku-dev/kelasku-go-api/internal/repository"
)

// AssignmentService exposes assignment domain use cases. The grading rubric
// and guidance text set here are handed to the AI reviewer verbatim.
type AssignmentService interface {
	List(ctx context.Context) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
		now:       time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context) ([]dto.AssignmentResponse, error) {
	assignments, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewAssignmentResponseSlice(assignments), nil
}

func (s *assignmentService) Get(ctx context.Context, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}

		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	dueDate, err := time.Parse(time.RFC3339, payload.DueDate)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("invalid due date: %w", err)
	}

	if !dueDate.After(s.now()) {
		return dto.AssignmentResponse{}, fmt.Errorf("due date must be in the future")
	}

	assignment := models.Assignment{
		CourseID:      payload.CourseID,
		Title:         payload.Title,
		Description:   payload.Description,
		GradingRubric: payload.GradingRubric,
		GuidanceText:  payload.GuidanceText,
		DueDate:       dueDate,
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Uint("course_id", assignment.CourseID).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}

		return dto.AssignmentResponse{}, err
	}

	if payload.Title != nil {
		assignment.Title = *payload.Title
	}

	if payload.Description != nil {
		assignment.Description = *payload.Description
	}

	if payload.GradingRubric != nil {
		assignment.GradingRubric = *payload.GradingRubric
	}

	if payload.GuidanceText != nil {
		assignment.GuidanceText = *payload.GuidanceText
	}

	if payload.DueDate != nil {
		dueDate, err := time.Parse(time.RFC3339, *payload.DueDate)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("invalid due date: %w", err)
		}

		if !dueDate.After(s.now()) {
			return dto.AssignmentResponse{}, fmt.Errorf("due date must be in the future")
		}

		assignment.DueDate = dueDate
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment updated")

	return dto.NewAssignmentResponse(assignment), nil
}
