// Package assignment содержит назначение потока пользователю и его
// жизненный цикл: NOT_STARTED → IN_PROGRESS ⇄ PAUSED → COMPLETED | CANCELLED.
// Каждый недопустимый переход возвращает ошибку; ни один не игнорируется молча.
package assignment

import (
	"strings"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

const domainName = "assignment"

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status - статус назначения.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true для завершённых и отменённых назначений.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ActiveStatuses - статусы, при которых назначение считается активным.
var ActiveStatuses = []Status{StatusNotStarted, StatusInProgress, StatusPaused}

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS & ERRORS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxBuddies - максимум бадди на назначение.
	MaxBuddies = 5
	// DefaultDeadlineBusinessDays - срок по умолчанию в рабочих днях.
	DefaultDeadlineBusinessDays = 7
	// MinExtendDays и MaxExtendDays ограничивают продление срока.
	MinExtendDays = 1
	MaxExtendDays = 365
)

var (
	// ErrAssignmentNotFound - назначение не найдено.
	ErrAssignmentNotFound = shared.NewDomainError(domainName, "Find", shared.ErrNotFound, "assignment not found")

	// ErrActiveAssignmentExists - у пользователя уже есть активное назначение этого потока.
	ErrActiveAssignmentExists = shared.NewDomainError(domainName, "Create", shared.ErrAlreadyExists, "user already has an active assignment for this flow")

	// ErrTooManyActiveAssignments - превышен лимит активных назначений.
	ErrTooManyActiveAssignments = shared.NewDomainError(domainName, "Create", shared.ErrConflict, "active assignments limit reached")

	// ErrBuddiesRequired - нужен хотя бы один бадди.
	ErrBuddiesRequired = shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "at least one buddy is required")

	// ErrTooManyBuddies - больше пяти бадди.
	ErrTooManyBuddies = shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "no more than 5 buddies are allowed")

	// ErrSelfBuddy - пользователь не может быть своим бадди.
	ErrSelfBuddy = shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "user cannot be their own buddy")

	// ErrDeadlineInPast - срок должен быть в будущем.
	ErrDeadlineInPast = shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "deadline must be in the future")

	// ErrNegativeTimeSpent - время не может быть отрицательным.
	ErrNegativeTimeSpent = shared.NewDomainError(domainName, "Validate", shared.ErrNegativeValue, "time spent cannot be negative")

	// ErrActorRequired - для действия нужен инициатор.
	ErrActorRequired = shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "actor id is required")

	// ErrOverdue - просроченное назначение нельзя начать.
	ErrOverdue = shared.NewDomainError(domainName, "Start", shared.ErrInvalidState, "assignment is overdue")

	// ErrInvalidCustomDeadline - срок в днях вне диапазона 0..365.
	ErrInvalidCustomDeadline = shared.NewDomainError(domainName, "Validate", shared.ErrValueOutOfRange, "custom deadline days must be between 1 and 365")

	// ErrInvalidExtension - продление вне диапазона 1..365.
	ErrInvalidExtension = shared.NewDomainError(domainName, "ExtendDeadline", shared.ErrValueOutOfRange, "extension must be between 1 and 365 days")
)

func transitionError(op string, from Status) error {
	return shared.Errorf(domainName, op, shared.ErrStateTransition, "cannot %s assignment in status %s", strings.ToLower(op), from)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ASSIGNMENT
// ══════════════════════════════════════════════════════════════════════════════

// Assignment - привязка пользователя к снапшоту потока.
type Assignment struct {
	ID             string
	UserID         string
	FlowID         string
	FlowSnapshotID string
	AssignedBy     string

	Status    Status
	Deadline  time.Time
	IsOverdue bool

	AssignedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	BuddyIDs []string

	// Поля паузы переиспользуются отменой для записи инициатора и причины.
	PausedAt    *time.Time
	PausedByID  string
	PauseReason string

	// TimeSpent - накопленное время в секундах.
	TimeSpent    int64
	LastActivity *time.Time

	// Version - версия для оптимистической блокировки.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewParams содержит параметры для создания назначения.
type NewParams struct {
	ID             string
	UserID         string
	FlowID         string
	FlowSnapshotID string
	AssignedBy     string
	BuddyIDs       []string

	// Deadline - явный срок; имеет приоритет над остальными способами.
	Deadline *time.Time
	// CustomDeadlineDays - срок в рабочих днях от now.
	CustomDeadlineDays int
	// FlowDefaultDeadlineDays - срок по умолчанию из шаблона потока.
	FlowDefaultDeadlineDays int
	// FallbackBusinessDays - срок из политики; 0 означает 7 рабочих дней.
	FallbackBusinessDays int
}

// New создаёт назначение в статусе NOT_STARTED.
func New(p NewParams, now time.Time) (*Assignment, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError(domainName, "New", shared.ErrInvalidID, "assignment id is required")
	}

	deadline, err := ResolveDeadline(p, now)
	if err != nil {
		return nil, err
	}

	a := &Assignment{
		ID:             p.ID,
		UserID:         strings.TrimSpace(p.UserID),
		FlowID:         p.FlowID,
		FlowSnapshotID: p.FlowSnapshotID,
		AssignedBy:     p.AssignedBy,
		Status:         StatusNotStarted,
		Deadline:       deadline,
		AssignedAt:     now,
		BuddyIDs:       NormalizeBuddies(p.BuddyIDs),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// NormalizeBuddies обрезает пробелы, убирает пустые и повторяющиеся id.
func NormalizeBuddies(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Validate проверяет инварианты; вызывается после каждой мутации.
func (a *Assignment) Validate() error {
	if a.UserID == "" {
		return shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "user id is required")
	}
	if a.FlowSnapshotID == "" {
		return shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "flow snapshot id is required")
	}
	if !a.Status.IsValid() {
		return shared.Errorf(domainName, "Validate", shared.ErrValidation, "invalid status %q", a.Status)
	}
	if err := validateBuddies(a.UserID, a.BuddyIDs); err != nil {
		return err
	}
	if a.TimeSpent < 0 {
		return ErrNegativeTimeSpent
	}
	return nil
}

func validateBuddies(userID string, buddies []string) error {
	if len(buddies) == 0 {
		return ErrBuddiesRequired
	}
	if len(buddies) > MaxBuddies {
		return ErrTooManyBuddies
	}
	for _, b := range buddies {
		if b == userID {
			return ErrSelfBuddy
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Роли участников
// ─────────────────────────────────────────────────────────────────────────────

// IsOwner проверяет, что пользователь - владелец назначения.
func (a *Assignment) IsOwner(userID string) bool {
	return a.UserID == userID
}

// IsBuddy проверяет, что пользователь - бадди назначения.
func (a *Assignment) IsBuddy(userID string) bool {
	for _, b := range a.BuddyIDs {
		if b == userID {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Переходы состояний
// ─────────────────────────────────────────────────────────────────────────────

// Start переводит NOT_STARTED → IN_PROGRESS.
func (a *Assignment) Start(now time.Time) error {
	if a.Status != StatusNotStarted {
		return transitionError("Start", a.Status)
	}
	if a.IsOverdue {
		return ErrOverdue
	}
	a.Status = StatusInProgress
	a.StartedAt = &now
	a.LastActivity = &now
	return a.commit(now)
}

// Pause переводит IN_PROGRESS → PAUSED.
func (a *Assignment) Pause(actorID, reason string, now time.Time) error {
	if strings.TrimSpace(actorID) == "" {
		return ErrActorRequired
	}
	if a.Status != StatusInProgress || a.PausedAt != nil {
		return transitionError("Pause", a.Status)
	}
	a.Status = StatusPaused
	a.PausedAt = &now
	a.PausedByID = actorID
	a.PauseReason = strings.TrimSpace(reason)
	return a.commit(now)
}

// Resume переводит PAUSED → IN_PROGRESS и сдвигает срок на число
// целых дней паузы (с округлением вверх): пауза не засчитывается против ученика.
// Возвращает количество дней, на которое продлён срок.
func (a *Assignment) Resume(actorID string, now time.Time) (int, error) {
	if strings.TrimSpace(actorID) == "" {
		return 0, ErrActorRequired
	}
	if a.Status != StatusPaused || a.PausedAt == nil {
		return 0, transitionError("Resume", a.Status)
	}

	days := timeutil.CeilDays(now.Sub(*a.PausedAt))
	a.Deadline = a.Deadline.AddDate(0, 0, days)
	if a.IsOverdue && a.Deadline.After(now) {
		a.IsOverdue = false
	}

	a.Status = StatusInProgress
	a.clearPause()
	a.LastActivity = &now
	return days, a.commit(now)
}

// Complete переводит любой нетерминальный статус в COMPLETED.
func (a *Assignment) Complete(now time.Time) error {
	if a.Status.IsTerminal() {
		return transitionError("Complete", a.Status)
	}
	a.Status = StatusCompleted
	a.CompletedAt = &now
	a.LastActivity = &now
	a.clearPause()
	return a.commit(now)
}

// Cancel переводит любой нетерминальный статус в CANCELLED.
// Инициатор и причина записываются в поля паузы.
func (a *Assignment) Cancel(actorID, reason string, now time.Time) error {
	if strings.TrimSpace(actorID) == "" {
		return ErrActorRequired
	}
	if a.Status.IsTerminal() {
		return transitionError("Cancel", a.Status)
	}
	a.Status = StatusCancelled
	a.PausedAt = &now
	a.PausedByID = actorID
	a.PauseReason = strings.TrimSpace(reason)
	return a.commit(now)
}

// ExtendDeadline сдвигает срок вперёд на days дней.
func (a *Assignment) ExtendDeadline(days int, actorID string, now time.Time) error {
	if days < MinExtendDays || days > MaxExtendDays {
		return ErrInvalidExtension
	}
	if strings.TrimSpace(actorID) == "" {
		return ErrActorRequired
	}
	if a.Status.IsTerminal() {
		return transitionError("ExtendDeadline", a.Status)
	}
	a.Deadline = a.Deadline.AddDate(0, 0, days)
	if a.IsOverdue && a.Deadline.After(now) {
		a.IsOverdue = false
	}
	return a.commit(now)
}

// AddTimeSpent добавляет время в секундах и обновляет lastActivity.
func (a *Assignment) AddTimeSpent(seconds int64, now time.Time) error {
	if seconds < 0 {
		return ErrNegativeTimeSpent
	}
	a.TimeSpent += seconds
	a.LastActivity = &now
	return a.commit(now)
}

// IsInProgress возвращает true, если с назначением можно взаимодействовать.
func (a *Assignment) IsInProgress() bool {
	return a.Status == StatusInProgress
}

func (a *Assignment) clearPause() {
	a.PausedAt = nil
	a.PausedByID = ""
	a.PauseReason = ""
}

func (a *Assignment) commit(now time.Time) error {
	a.UpdatedAt = now
	return a.Validate()
}

// Clone создаёт глубокую копию назначения.
func (a *Assignment) Clone() *Assignment {
	c := *a
	c.BuddyIDs = append([]string(nil), a.BuddyIDs...)
	c.StartedAt = cloneTime(a.StartedAt)
	c.CompletedAt = cloneTime(a.CompletedAt)
	c.PausedAt = cloneTime(a.PausedAt)
	c.LastActivity = cloneTime(a.LastActivity)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
