package dto

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExamCreateRequest represents the payload for scheduling an exam.
type ExamCreateRequest struct {
	Description     string    `json:"description" validate:"required,max=65536"`
	StartingAt      time.Time `json:"starting_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
}

// Duration converts the requested duration.
func (r ExamCreateRequest) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// ExamUpdateRequest carries a partial exam update.
type ExamUpdateRequest struct {
	Description     *string    `json:"description" validate:"omitempty,max=65536"`
	StartingAt      *time.Time `json:"starting_at"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,gt=0"`
}

// ExamOwnerRequest names an owner to grant.
type ExamOwnerRequest struct {
	OwnerID uint `json:"owner_id" validate:"required,gt=0"`
}

// ExamResponse represents an exam to API consumers.
type ExamResponse struct {
	ID              uint      `json:"id"`
	Description     string    `json:"description"`
	StartingAt      time.Time `json:"starting_at"`
	EndingAt        time.Time `json:"ending_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Owners          []uint    `json:"owners"`
	State           string    `json:"state"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewExamResponse builds a response DTO from a model.
func NewExamResponse(exam models.Exam) ExamResponse {
	owners := make([]uint, len(exam.Owners))
	copy(owners, exam.Owners)
	return ExamResponse{
		ID:              exam.ID,
		Description:     exam.Description,
		StartingAt:      exam.StartingAt,
		EndingAt:        exam.EndingAt(),
		DurationMinutes: int(exam.Duration / time.Minute),
		Owners:          owners,
		State:           string(exam.State),
		CreatedAt:       exam.CreatedAt,
		UpdatedAt:       exam.UpdatedAt,
	}
}

// NewExamResponses converts a list of exams.
func NewExamResponses(exams []models.Exam) []ExamResponse {
	responses := make([]ExamResponse, 0, len(exams))
	for _, exam := range exams {
		responses = append(responses, NewExamResponse(exam))
	}
	return responses
}
