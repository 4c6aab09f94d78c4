package repository

import (
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// Models lists every persisted entity in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Exam{},
		&models.Exercise{},
		&models.TestCase{},
		&models.ExamSolutionSubmission{},
		&models.ExerciseSolution{},
		&models.ExerciseSolutionResult{},
	}
}

// AutoMigrate creates or updates the tables backing the exam catalog.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
