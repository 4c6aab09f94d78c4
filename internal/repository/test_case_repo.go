package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// TestCaseRepository exposes persistence operations for test cases.
type TestCaseRepository interface {
	ListByExercise(ctx context.Context, exerciseID uint) ([]models.TestCase, error)
	GetByID(ctx context.Context, id uint) (models.TestCase, error)
	Create(ctx context.Context, testCase *models.TestCase) error
	Update(ctx context.Context, testCase *models.TestCase) error
	Delete(ctx context.Context, id uint) error
}

// NewTestCaseRepository constructs a test case repository.
func NewTestCaseRepository(db *gorm.DB) TestCaseRepository {
	return &testCaseRepository{db: db}
}

type testCaseRepository struct {
	db *gorm.DB
}

func (r *testCaseRepository) ListByExercise(ctx context.Context, exerciseID uint) ([]models.TestCase, error) {
	var testCases []models.TestCase
	err := r.db.WithContext(ctx).
		Where("exercise_id = ?", exerciseID).
		Order("id ASC").
		Find(&testCases).Error
	if err != nil {
		return nil, err
	}
	return testCases, nil
}

func (r *testCaseRepository) GetByID(ctx context.Context, id uint) (models.TestCase, error) {
	var testCase models.TestCase
	if err := r.db.WithContext(ctx).First(&testCase, id).Error; err != nil {
		return models.TestCase{}, err
	}
	return testCase, nil
}

func (r *testCaseRepository) Create(ctx context.Context, testCase *models.TestCase) error {
	return r.db.WithContext(ctx).Create(testCase).Error
}

func (r *testCaseRepository) Update(ctx context.Context, testCase *models.TestCase) error {
	return r.db.WithContext(ctx).Save(testCase).Error
}

func (r *testCaseRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.TestCase{}, id).Error
}
