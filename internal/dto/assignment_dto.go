package dto

import (
	"time"

	"github.com/kelasku-dev/kelasku-go-api/internal/models"
)

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	CourseID      uint   `json:"course_id" validate:"required,gt=0"`
	Title         string `json:"title" validate:"required,min=3"`
	Description   string `json:"description" validate:"required,min=10"`
	GradingRubric string `json:"grading_rubric" validate:"omitempty,max=8000"`
	GuidanceText  string `json:"guidance_text" validate:"omitempty,max=8000"`
	DueDate       string `json:"due_date" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// AssignmentUpdateRequest describes the payload for updating an assignment.
type AssignmentUpdateRequest struct {
	Title         *string `json:"title" validate:"omitempty,min=3"`
	Description   *string `json:"description" validate:"omitempty,min=10"`
	GradingRubric *string `json:"grading_rubric" validate:"omitempty,max=8000"`
	GuidanceText  *string `json:"guidance_text" validate:"omitempty,max=8000"`
	DueDate       *string `json:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID            uint      `json:"id"`
	CourseID      uint      `json:"course_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	GradingRubric string    `json:"grading_rubric"`
	GuidanceText  string    `json:"guidance_text"`
	DueDate       time.Time `json:"due_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:            model.ID,
		CourseID:      model.CourseID,
		Title:         model.Title,
		Description:   model.Description,
		GradingRubric: model.GradingRubric,
		GuidanceText:  model.GuidanceText,
		DueDate:       model.DueDate,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
