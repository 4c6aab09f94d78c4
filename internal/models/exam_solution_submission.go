package models

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
)

// SubmissionState enumerates the phases of a student's exam attempt.
type SubmissionState string

const (
	SubmissionStateUnplaced  SubmissionState = "UNPLACED"
	SubmissionStateSubmitted SubmissionState = "SUBMITTED"
)

// ExamSolutionSubmission is a student's single attempt at an exam.
type ExamSolutionSubmission struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ExamID      uint            `gorm:"not null;uniqueIndex:idx_submission_exam_submitter" json:"exam_id"`
	SubmitterID uint            `gorm:"not null;uniqueIndex:idx_submission_exam_submitter" json:"submitter_id"`
	State       SubmissionState `gorm:"size:16;not null" json:"state"`
	Score       *float64        `json:"score"`
	SubmittedAt *time.Time      `json:"submitted_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsUnplaced reports whether solutions may still be edited.
func (s ExamSolutionSubmission) IsUnplaced() bool {
	return s.State == SubmissionStateUnplaced
}

// IsSubmitted reports whether results are observable.
func (s ExamSolutionSubmission) IsSubmitted() bool {
	return s.State == SubmissionStateSubmitted
}

// Submit moves the submission from UNPLACED to SUBMITTED exactly once.
func (s *ExamSolutionSubmission) Submit(now time.Time) error {
	if s.State != SubmissionStateUnplaced {
		return apperror.IllegalState("submission %d has already been submitted", s.ID)
	}
	s.State = SubmissionStateSubmitted
	submittedAt := now.UTC()
	s.SubmittedAt = &submittedAt
	return nil
}
