package models

import (
	"strings"
	"time"
)

// ExerciseSolution is a student's answer to one exercise within a submission.
type ExerciseSolution struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ExerciseID    uint      `gorm:"not null;uniqueIndex:idx_solution_submission_exercise" json:"exercise_id"`
	SubmissionID  uint      `gorm:"not null;uniqueIndex:idx_solution_submission_exercise;index" json:"submission_id"`
	Answer        string    `gorm:"type:text" json:"answer"`
	CompilerFlags string    `gorm:"size:255" json:"compiler_flags"`
	MainFileName  string    `gorm:"size:255" json:"main_file_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsAnswered reports whether the solution carries code worth executing.
func (s ExerciseSolution) IsAnswered() bool {
	return strings.TrimSpace(s.Answer) != ""
}
