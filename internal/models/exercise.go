package models

import (
	"strings"
	"time"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
)

// Language identifies the programming language an exercise is answered in.
type Language string

const (
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageJava       Language = "java"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageGo         Language = "go"
)

var supportedLanguages = map[Language]struct{}{
	LanguageC:          {},
	LanguageCPP:        {},
	LanguageJava:       {},
	LanguagePython:     {},
	LanguageJavaScript: {},
	LanguageGo:         {},
}

// ParseLanguage normalises a language tag and rejects unsupported values.
func ParseLanguage(value string) (Language, error) {
	language := Language(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := supportedLanguages[language]; !ok {
		return "", apperror.InvalidArgument("unsupported language %q", value)
	}
	return language, nil
}

// Exercise is a programming question belonging to an exam.
type Exercise struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExamID           uint      `gorm:"not null;index" json:"exam_id"`
	Question         string    `gorm:"type:text;not null" json:"question"`
	Language         Language  `gorm:"size:16;not null" json:"language"`
	SolutionTemplate string    `gorm:"type:text" json:"solution_template"`
	AwardedScore     float64   `gorm:"not null" json:"awarded_score"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewExercise builds an exercise bound to examID.
func NewExercise(examID uint, question string, language string, template string, awardedScore float64) (Exercise, error) {
	exercise := Exercise{ExamID: examID, SolutionTemplate: template}
	if err := exercise.SetQuestion(question); err != nil {
		return Exercise{}, err
	}
	if err := exercise.SetLanguage(language); err != nil {
		return Exercise{}, err
	}
	if err := exercise.SetAwardedScore(awardedScore); err != nil {
		return Exercise{}, err
	}
	return exercise, nil
}

// SetQuestion replaces the question text.
func (e *Exercise) SetQuestion(question string) error {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return apperror.InvalidArgument("exercise question must not be blank")
	}
	e.Question = trimmed
	return nil
}

// SetLanguage replaces the language tag.
func (e *Exercise) SetLanguage(language string) error {
	parsed, err := ParseLanguage(language)
	if err != nil {
		return err
	}
	e.Language = parsed
	return nil
}

// SetAwardedScore replaces the score awarded for a fully approved solution.
func (e *Exercise) SetAwardedScore(score float64) error {
	if score <= 0 {
		return apperror.InvalidArgument("exercise awarded score must be positive")
	}
	e.AwardedScore = score
	return nil
}
