package achievement

import "time"

// Facts - наблюдения об одном взаимодействии, по которым проверяются правила.
type Facts struct {
	UserID        string
	AssignmentID  string
	ComponentID   string
	ComponentType string

	// ComponentCompleted - компонент завершён этим взаимодействием.
	ComponentCompleted bool
	// CompletedComponents - число завершённых компонентов в потоке после взаимодействия.
	CompletedComponents int
	// QuizPercentage - результат отправленного квиза.
	QuizPercentage *float64
	// TaskAttempts - число попыток решённого задания.
	TaskAttempts int

	StepCompleted bool
	FlowCompleted bool

	Deadline time.Time
	At       time.Time
}

// Evaluate возвращает коды достижений, условия которых выполнены.
// Повторная выдача отсекается репозиторием.
func Evaluate(f Facts) []Type {
	var out []Type
	if f.ComponentCompleted {
		if f.CompletedComponents == 1 {
			out = append(out, FirstComponent)
		}
		if f.ComponentType == "quiz" && f.QuizPercentage != nil && *f.QuizPercentage >= 100 {
			out = append(out, PerfectQuiz)
		}
		if f.ComponentType == "task" && f.TaskAttempts == 1 {
			out = append(out, FirstTryTask)
		}
	}
	if f.StepCompleted {
		out = append(out, StepMaster)
	}
	if f.FlowCompleted {
		out = append(out, FlowFinisher)
		if !f.Deadline.IsZero() && f.Deadline.Sub(f.At) >= 24*time.Hour {
			out = append(out, EarlyBird)
		}
	}
	return out
}
