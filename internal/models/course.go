package models

import "time"

// Course groups assignments and the students enrolled in them.
type Course struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Name        string       `gorm:"size:255;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Assignments []Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignments,omitempty"`
}
