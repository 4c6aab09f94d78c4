package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// SolutionSubmissionRepository exposes persistence helpers for exam solution submissions.
type SolutionSubmissionRepository interface {
	ListByExam(ctx context.Context, examID uint) ([]models.ExamSolutionSubmission, error)
	GetByID(ctx context.Context, id uint) (models.ExamSolutionSubmission, error)
	ExistsForSubmitter(ctx context.Context, examID, submitterID uint) (bool, error)
	Create(ctx context.Context, submission *models.ExamSolutionSubmission) error
	// CreateWithSolutions stores the submission and its solutions atomically. Each
	// solution is attached to the new submission.
	CreateWithSolutions(ctx context.Context, submission *models.ExamSolutionSubmission, solutions []models.ExerciseSolution) error
	Update(ctx context.Context, submission *models.ExamSolutionSubmission) error
}

// NewSolutionSubmissionRepository constructs a submission repository.
func NewSolutionSubmissionRepository(db *gorm.DB) SolutionSubmissionRepository {
	return &solutionSubmissionRepository{db: db}
}

type solutionSubmissionRepository struct {
	db *gorm.DB
}

func (r *solutionSubmissionRepository) ListByExam(ctx context.Context, examID uint) ([]models.ExamSolutionSubmission, error) {
	var submissions []models.ExamSolutionSubmission
	err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("id ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *solutionSubmissionRepository) GetByID(ctx context.Context, id uint) (models.ExamSolutionSubmission, error) {
	var submission models.ExamSolutionSubmission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.ExamSolutionSubmission{}, err
	}
	return submission, nil
}

func (r *solutionSubmissionRepository) ExistsForSubmitter(ctx context.Context, examID, submitterID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ExamSolutionSubmission{}).
		Where("exam_id = ? AND submitter_id = ?", examID, submitterID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *solutionSubmissionRepository) Create(ctx context.Context, submission *models.ExamSolutionSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *solutionSubmissionRepository) CreateWithSolutions(ctx context.Context, submission *models.ExamSolutionSubmission, solutions []models.ExerciseSolution) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(submission).Error; err != nil {
			return err
		}
		if len(solutions) == 0 {
			return nil
		}
		for i := range solutions {
			solutions[i].SubmissionID = submission.ID
		}
		return tx.Create(&solutions).Error
	})
}

func (r *solutionSubmissionRepository) Update(ctx context.Context, submission *models.ExamSolutionSubmission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}
