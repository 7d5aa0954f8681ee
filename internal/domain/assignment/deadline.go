package assignment

import (
	"time"

	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ResolveDeadline вычисляет срок назначения. Приоритет: явный Deadline,
// затем CustomDeadlineDays, затем срок из шаблона, затем политика (7 рабочих дней).
// Срок, не лежащий строго в будущем, отвергается.
func ResolveDeadline(p NewParams, now time.Time) (time.Time, error) {
	if p.CustomDeadlineDays < 0 || p.CustomDeadlineDays > MaxExtendDays {
		return time.Time{}, ErrInvalidCustomDeadline
	}

	var deadline time.Time
	switch {
	case p.Deadline != nil:
		deadline = *p.Deadline
	case p.CustomDeadlineDays > 0:
		deadline = timeutil.AddBusinessDays(now, p.CustomDeadlineDays)
	case p.FlowDefaultDeadlineDays > 0:
		deadline = timeutil.AddBusinessDays(now, p.FlowDefaultDeadlineDays)
	default:
		days := p.FallbackBusinessDays
		if days <= 0 {
			days = DefaultDeadlineBusinessDays
		}
		deadline = timeutil.AddBusinessDays(now, days)
	}

	if !deadline.After(now) {
		return time.Time{}, ErrDeadlineInPast
	}
	return deadline, nil
}

// DeadlineStatus - результат проверки срока.
type DeadlineStatus struct {
	IsOverdue     bool
	DaysRemaining int
	// IsAtRisk - осталось не более двух дней.
	IsAtRisk bool
	// IsCritical - остался не более чем один день.
	IsCritical bool
}

// EvaluateDeadline вычисляет статус срока без изменения назначения.
func (a *Assignment) EvaluateDeadline(now time.Time) DeadlineStatus {
	days := timeutil.CeilDays(a.Deadline.Sub(now))
	passed := !now.Before(a.Deadline)

	return DeadlineStatus{
		IsOverdue:     a.IsOverdue || (passed && !a.Status.IsTerminal()),
		DaysRemaining: days,
		IsAtRisk:      days > 0 && days <= 2,
		IsCritical:    days > 0 && days <= 1,
	}
}

// CheckDeadline пересчитывает статус срока и фиксирует просрочку.
// Флаг IsOverdue монотонен: снять его могут только ExtendDeadline и Resume.
// Второе значение сообщает, изменилось ли назначение.
func (a *Assignment) CheckDeadline(now time.Time) (DeadlineStatus, bool) {
	st := a.EvaluateDeadline(now)
	if st.IsOverdue && !a.IsOverdue && !a.Status.IsTerminal() {
		a.IsOverdue = true
		a.UpdatedAt = now
		return st, true
	}
	return st, false
}
