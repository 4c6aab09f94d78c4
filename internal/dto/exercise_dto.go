package dto

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExerciseCreateRequest represents the payload for adding an exercise to an exam.
type ExerciseCreateRequest struct {
	Question         string  `json:"question" validate:"required"`
	Language         string  `json:"language" validate:"required"`
	SolutionTemplate string  `json:"solution_template"`
	AwardedScore     float64 `json:"awarded_score" validate:"gt=0"`
}

// ExerciseUpdateRequest carries a partial exercise update.
type ExerciseUpdateRequest struct {
	Question         *string  `json:"question"`
	Language         *string  `json:"language"`
	SolutionTemplate *string  `json:"solution_template"`
	AwardedScore     *float64 `json:"awarded_score" validate:"omitempty,gt=0"`
}

// ExerciseResponse represents an exercise to API consumers.
type ExerciseResponse struct {
	ID               uint      `json:"id"`
	ExamID           uint      `json:"exam_id"`
	Question         string    `json:"question"`
	Language         string    `json:"language"`
	SolutionTemplate string    `json:"solution_template"`
	AwardedScore     float64   `json:"awarded_score"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewExerciseResponse builds a response DTO from a model.
func NewExerciseResponse(exercise models.Exercise) ExerciseResponse {
	return ExerciseResponse{
		ID:               exercise.ID,
		ExamID:           exercise.ExamID,
		Question:         exercise.Question,
		Language:         string(exercise.Language),
		SolutionTemplate: exercise.SolutionTemplate,
		AwardedScore:     exercise.AwardedScore,
		CreatedAt:        exercise.CreatedAt,
		UpdatedAt:        exercise.UpdatedAt,
	}
}

// NewExerciseResponses converts a list of exercises.
func NewExerciseResponses(exercises []models.Exercise) []ExerciseResponse {
	responses := make([]ExerciseResponse, 0, len(exercises))
	for _, exercise := range exercises {
		responses = append(responses, NewExerciseResponse(exercise))
	}
	return responses
}
