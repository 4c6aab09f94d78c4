package service

import (
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// Services bundles the exam managers sharing one database, policy and bus.
type Services struct {
	Exams     ExamService
	Exercises ExerciseService
	TestCases TestCaseService
	Solutions SolutionService
	Results   ResultService
}

// NewServices builds the gorm repositories, the role policy and every manager.
// The result manager subscribes to bus while being constructed.
func NewServices(db *gorm.DB, bus events.Bus, validate *validator.Validate, logger zerolog.Logger) Services {
	examRepo := repository.NewExamRepository(db)
	exerciseRepo := repository.NewExerciseRepository(db)
	testCaseRepo := repository.NewTestCaseRepository(db)
	submissionRepo := repository.NewSolutionSubmissionRepository(db)
	solutionRepo := repository.NewExerciseSolutionRepository(db)
	resultRepo := repository.NewSolutionResultRepository(db)

	policy := authz.NewRolePolicy(authz.RolePolicyRepositories{
		Exams:       examRepo,
		Exercises:   exerciseRepo,
		TestCases:   testCaseRepo,
		Submissions: submissionRepo,
		Solutions:   solutionRepo,
	})
	catalog := CatalogRepositories{Exams: examRepo, Exercises: exerciseRepo, TestCases: testCaseRepo}

	return Services{
		Exams:     NewExamService(catalog, policy, validate, logger),
		Exercises: NewExerciseService(catalog, policy, validate, logger),
		TestCases: NewTestCaseService(catalog, policy, validate, logger),
		Solutions: NewSolutionService(SolutionRepositories{
			Exams:       examRepo,
			Exercises:   exerciseRepo,
			Submissions: submissionRepo,
			Solutions:   solutionRepo,
		}, policy, bus, validate, logger),
		Results: NewResultService(ResultRepositories{
			Exercises:   exerciseRepo,
			TestCases:   testCaseRepo,
			Submissions: submissionRepo,
			Solutions:   solutionRepo,
			Results:     resultRepo,
		}, policy, bus, logger),
	}
}
