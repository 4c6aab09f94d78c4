package models

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
)

// ExamState enumerates the lifecycle phases of an exam.
type ExamState string

const (
	ExamStateUpcoming   ExamState = "UPCOMING"
	ExamStateInProgress ExamState = "IN_PROGRESS"
	ExamStateFinished   ExamState = "FINISHED"
)

// MaxExamDescriptionLength bounds the exam description in characters.
const MaxExamDescriptionLength = 64 * 1024

// Exam is a scheduled programming assessment owned by one or more instructors.
type Exam struct {
	ID          uint                      `gorm:"primaryKey" json:"id"`
	Description string                    `gorm:"type:text;not null" json:"description"`
	StartingAt  time.Time                 `gorm:"not null" json:"starting_at"`
	Duration    time.Duration             `gorm:"not null" json:"duration"`
	Owners      datatypes.JSONSlice[uint] `json:"owners"`
	State       ExamState                 `gorm:"size:16;not null;index" json:"state"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// NewExam builds an upcoming exam owned exclusively by owner.
func NewExam(description string, startingAt time.Time, duration time.Duration, owner uint, now time.Time) (Exam, error) {
	exam := Exam{State: ExamStateUpcoming}
	if err := exam.SetDescription(description); err != nil {
		return Exam{}, err
	}
	if err := exam.SetStartingAt(startingAt, now); err != nil {
		return Exam{}, err
	}
	if err := exam.SetDuration(duration); err != nil {
		return Exam{}, err
	}
	if err := exam.AddOwner(owner); err != nil {
		return Exam{}, err
	}
	return exam, nil
}

// SetDescription replaces the description after validating it.
func (e *Exam) SetDescription(description string) error {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return apperror.InvalidArgument("exam description must not be blank")
	}
	if utf8.RuneCountInString(trimmed) > MaxExamDescriptionLength {
		return apperror.InvalidArgument("exam description exceeds %d characters", MaxExamDescriptionLength)
	}
	e.Description = trimmed
	return nil
}

// SetStartingAt replaces the starting time, which must lie in the future.
func (e *Exam) SetStartingAt(startingAt time.Time, now time.Time) error {
	if startingAt.IsZero() || !startingAt.After(now) {
		return apperror.InvalidArgument("exam starting time must be in the future")
	}
	e.StartingAt = startingAt.UTC()
	return nil
}

// SetDuration replaces the exam duration, which must be positive.
func (e *Exam) SetDuration(duration time.Duration) error {
	if duration <= 0 {
		return apperror.InvalidArgument("exam duration must be positive")
	}
	e.Duration = duration
	return nil
}

// EndingAt is informative only; state changes are explicit administrative actions.
func (e Exam) EndingAt() time.Time {
	return e.StartingAt.Add(e.Duration)
}

// IsUpcoming reports whether structural edits are still allowed.
func (e Exam) IsUpcoming() bool {
	return e.State == ExamStateUpcoming
}

// IsInProgress reports whether students may currently work on the exam.
func (e Exam) IsInProgress() bool {
	return e.State == ExamStateInProgress
}

// IsFinished reports whether the exam has been closed.
func (e Exam) IsFinished() bool {
	return e.State == ExamStateFinished
}

// Start moves the exam from UPCOMING to IN_PROGRESS.
func (e *Exam) Start() error {
	if e.State != ExamStateUpcoming {
		return apperror.IllegalState("exam %d is %s, only upcoming exams can be started", e.ID, e.State)
	}
	e.State = ExamStateInProgress
	return nil
}

// Finish moves the exam from IN_PROGRESS to FINISHED.
func (e *Exam) Finish() error {
	if e.State != ExamStateInProgress {
		return apperror.IllegalState("exam %d is %s, only exams in progress can be finished", e.ID, e.State)
	}
	e.State = ExamStateFinished
	return nil
}

// OwnerSet returns the owners as a set.
func (e Exam) OwnerSet() mapset.Set[uint] {
	return mapset.NewSet[uint](e.Owners...)
}

// IsOwner reports whether ownerID owns the exam.
func (e Exam) IsOwner(ownerID uint) bool {
	if ownerID == 0 {
		return false
	}
	return e.OwnerSet().Contains(ownerID)
}

// AddOwner grants ownership; adding an existing owner is a no-op.
func (e *Exam) AddOwner(ownerID uint) error {
	if ownerID == 0 {
		return apperror.InvalidArgument("owner must not be blank")
	}
	owners := e.OwnerSet()
	if !owners.Add(ownerID) {
		return nil
	}
	e.Owners = sortedOwners(owners)
	return nil
}

// RemoveOwner revokes ownership; the last owner can never be removed.
func (e *Exam) RemoveOwner(ownerID uint) error {
	if ownerID == 0 {
		return apperror.InvalidArgument("owner must not be blank")
	}
	owners := e.OwnerSet()
	if !owners.Contains(ownerID) {
		return nil
	}
	if owners.Cardinality() == 1 {
		return apperror.IllegalState("cannot remove the last owner of exam %d", e.ID)
	}
	owners.Remove(ownerID)
	e.Owners = sortedOwners(owners)
	return nil
}

func sortedOwners(owners mapset.Set[uint]) datatypes.JSONSlice[uint] {
	values := owners.ToSlice()
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return datatypes.JSONSlice[uint](values)
}
