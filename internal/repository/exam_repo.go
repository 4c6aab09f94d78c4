package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExamRepository exposes persistence operations for exams.
type ExamRepository interface {
	List(ctx context.Context) ([]models.Exam, error)
	GetByID(ctx context.Context, id uint) (models.Exam, error)
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	// DeleteCascade removes the exam together with its exercises and their test cases.
	DeleteCascade(ctx context.Context, id uint) error
}

// NewExamRepository constructs an exam repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

type examRepository struct {
	db *gorm.DB
}

func (r *examRepository) List(ctx context.Context) ([]models.Exam, error) {
	var exams []models.Exam
	if err := r.db.WithContext(ctx).Order("starting_at ASC, id ASC").Find(&exams).Error; err != nil {
		return nil, err
	}
	return exams, nil
}

func (r *examRepository) GetByID(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).First(&exam, id).Error; err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) Create(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Create(exam).Error
}

func (r *examRepository) Update(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Save(exam).Error
}

func (r *examRepository) DeleteCascade(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exerciseIDs := tx.Model(&models.Exercise{}).Select("id").Where("exam_id = ?", id)
		if err := tx.Where("exercise_id IN (?)", exerciseIDs).Delete(&models.TestCase{}).Error; err != nil {
			return err
		}
		if err := tx.Where("exam_id = ?", id).Delete(&models.Exercise{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Exam{}, id).Error
	})
}
