package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExerciseSolutionRepository exposes persistence helpers for exercise solutions.
type ExerciseSolutionRepository interface {
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.ExerciseSolution, error)
	GetByID(ctx context.Context, id uint) (models.ExerciseSolution, error)
	Update(ctx context.Context, solution *models.ExerciseSolution) error
}

// NewExerciseSolutionRepository constructs a solution repository.
func NewExerciseSolutionRepository(db *gorm.DB) ExerciseSolutionRepository {
	return &exerciseSolutionRepository{db: db}
}

type exerciseSolutionRepository struct {
	db *gorm.DB
}

func (r *exerciseSolutionRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.ExerciseSolution, error) {
	var solutions []models.ExerciseSolution
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&solutions).Error
	if err != nil {
		return nil, err
	}
	return solutions, nil
}

func (r *exerciseSolutionRepository) GetByID(ctx context.Context, id uint) (models.ExerciseSolution, error) {
	var solution models.ExerciseSolution
	if err := r.db.WithContext(ctx).First(&solution, id).Error; err != nil {
		return models.ExerciseSolution{}, err
	}
	return solution, nil
}

func (r *exerciseSolutionRepository) Update(ctx context.Context, solution *models.ExerciseSolution) error {
	return r.db.WithContext(ctx).Save(solution).Error
}
