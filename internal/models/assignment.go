package models

import "time"

// Assignment represents one graded task inside a course. Students link a
// repository to an assignment; pushes to that repository trigger AI review.
type Assignment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CourseID      uint      `gorm:"not null;index" json:"course_id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	Description   string    `gorm:"type:text" json:"description"`
	GradingRubric string    `gorm:"type:text" json:"grading_rubric"`
	GuidanceText  string    `gorm:"type:text" json:"guidance_text"`
	DueDate       time.Time `gorm:"not null" json:"due_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Course        Course    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Submissions   []Submission
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}
