package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExerciseRepository exposes persistence operations for exercises.
type ExerciseRepository interface {
	ListByExam(ctx context.Context, examID uint) ([]models.Exercise, error)
	GetByID(ctx context.Context, id uint) (models.Exercise, error)
	Create(ctx context.Context, exercise *models.Exercise) error
	Update(ctx context.Context, exercise *models.Exercise) error
	// DeleteCascade removes the exercise together with its test cases.
	DeleteCascade(ctx context.Context, id uint) error
}

// NewExerciseRepository constructs an exercise repository.
func NewExerciseRepository(db *gorm.DB) ExerciseRepository {
	return &exerciseRepository{db: db}
}

type exerciseRepository struct {
	db *gorm.DB
}

func (r *exerciseRepository) ListByExam(ctx context.Context, examID uint) ([]models.Exercise, error) {
	var exercises []models.Exercise
	err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("id ASC").
		Find(&exercises).Error
	if err != nil {
		return nil, err
	}
	return exercises, nil
}

func (r *exerciseRepository) GetByID(ctx context.Context, id uint) (models.Exercise, error) {
	var exercise models.Exercise
	if err := r.db.WithContext(ctx).First(&exercise, id).Error; err != nil {
		return models.Exercise{}, err
	}
	return exercise, nil
}

func (r *exerciseRepository) Create(ctx context.Context, exercise *models.Exercise) error {
	return r.db.WithContext(ctx).Create(exercise).Error
}

func (r *exerciseRepository) Update(ctx context.Context, exercise *models.Exercise) error {
	return r.db.WithContext(ctx).Save(exercise).Error
}

func (r *exerciseRepository) DeleteCascade(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exercise_id = ?", id).Delete(&models.TestCase{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Exercise{}, id).Error
	})
}
