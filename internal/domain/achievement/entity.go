// Package achievement содержит достижения, которые ученик получает за
// прохождение компонентов, шагов и потоков.
package achievement

import (
	"context"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// Type - код достижения.
type Type string

const (
	// FirstComponent - первый завершённый компонент в потоке.
	FirstComponent Type = "first_component"
	// PerfectQuiz - квиз сдан на 100%.
	PerfectQuiz Type = "perfect_quiz"
	// FirstTryTask - задание решено с первой попытки.
	FirstTryTask Type = "first_try_task"
	// StepMaster - завершён шаг потока.
	StepMaster Type = "step_master"
	// FlowFinisher - поток пройден целиком.
	FlowFinisher Type = "flow_finisher"
	// EarlyBird - поток пройден за сутки и более до дедлайна.
	EarlyBird Type = "early_bird"
)

// Definition описывает достижение.
type Definition struct {
	Type        Type
	Title       string
	Description string
}

var definitions = []Definition{
	{FirstComponent, "First steps", "Completed the first component of a flow"},
	{PerfectQuiz, "Flawless", "Passed a quiz with a perfect score"},
	{FirstTryTask, "Sharpshooter", "Solved a task on the first attempt"},
	{StepMaster, "Step master", "Completed a step of a flow"},
	{FlowFinisher, "Finisher", "Completed an entire flow"},
	{EarlyBird, "Early bird", "Completed a flow at least a day before the deadline"},
}

// Definitions возвращает все определения.
func Definitions() []Definition {
	return append([]Definition(nil), definitions...)
}

// Lookup возвращает определение по коду.
func Lookup(t Type) (Definition, bool) {
	for _, d := range definitions {
		if d.Type == t {
			return d, true
		}
	}
	return Definition{}, false
}

// Achievement - полученное пользователем достижение.
type Achievement struct {
	UserID       string
	Type         Type
	AssignmentID string
	ComponentID  string
	UnlockedAt   time.Time
}

// Title возвращает название достижения.
func (a Achievement) Title() string {
	d, _ := Lookup(a.Type)
	return d.Title
}

// ErrUnknownType - неизвестный код достижения.
var ErrUnknownType = shared.NewDomainError("achievement", "Award", shared.ErrValidation, "unknown achievement type")

// Repository хранит полученные достижения. Каждое достижение выдаётся
// пользователю не больше одного раза.
type Repository interface {
	// Award сохраняет достижение; возвращает false, если оно уже было получено.
	Award(ctx context.Context, a Achievement) (bool, error)

	// ListByUser возвращает достижения пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string) ([]Achievement, error)
}
