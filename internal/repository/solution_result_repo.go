package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// SolutionResultRepository exposes persistence helpers for exercise solution results.
type SolutionResultRepository interface {
	ListBySolution(ctx context.Context, solutionID uint) ([]models.ExerciseSolutionResult, error)
	GetBySolutionAndTestCase(ctx context.Context, solutionID, testCaseID uint) (models.ExerciseSolutionResult, error)
	Create(ctx context.Context, result *models.ExerciseSolutionResult) error
	// UpdateAtAttempt writes result only while the stored row is still at attempt and
	// reports whether it did.
	UpdateAtAttempt(ctx context.Context, result *models.ExerciseSolutionResult, attempt uint) (bool, error)
}

// NewSolutionResultRepository constructs a result repository.
func NewSolutionResultRepository(db *gorm.DB) SolutionResultRepository {
	return &solutionResultRepository{db: db}
}

type solutionResultRepository struct {
	db *gorm.DB
}

func (r *solutionResultRepository) ListBySolution(ctx context.Context, solutionID uint) ([]models.ExerciseSolutionResult, error) {
	var results []models.ExerciseSolutionResult
	err := r.db.WithContext(ctx).
		Where("solution_id = ?", solutionID).
		Order("test_case_id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *solutionResultRepository) GetBySolutionAndTestCase(ctx context.Context, solutionID, testCaseID uint) (models.ExerciseSolutionResult, error) {
	var result models.ExerciseSolutionResult
	err := r.db.WithContext(ctx).
		Where("solution_id = ? AND test_case_id = ?", solutionID, testCaseID).
		First(&result).Error
	if err != nil {
		return models.ExerciseSolutionResult{}, err
	}
	return result, nil
}

func (r *solutionResultRepository) Create(ctx context.Context, result *models.ExerciseSolutionResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *solutionResultRepository) UpdateAtAttempt(ctx context.Context, result *models.ExerciseSolutionResult, attempt uint) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.ExerciseSolutionResult{}).
		Where("id = ? AND attempt = ?", result.ID, attempt).
		Updates(map[string]interface{}{
			"result":    result.Result,
			"attempt":   result.Attempt,
			"exit_code": result.ExitCode,
			"stdout":    result.Stdout,
			"stderr":    result.Stderr,
			"detail":    result.Detail,
			"marked_at": result.MarkedAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
