package snapshot

import "context"

// Repository определяет операции со снапшотами.
// Снапшоты не обновляются: после Create допустим только Detach.
type Repository interface {
	// Create атомарно сохраняет снапшот со всеми шагами и компонентами.
	Create(ctx context.Context, s *FlowSnapshot) error

	// GetByID возвращает снапшот со всеми шагами и компонентами.
	// Возвращает ErrSnapshotNotFound, если снапшот не найден.
	GetByID(ctx context.Context, id string) (*FlowSnapshot, error)

	// AttachAssignment проставляет обратную ссылку после создания назначения.
	AttachAssignment(ctx context.Context, snapshotID, assignmentID string) error

	// Detach обнуляет обратную ссылку на назначение.
	Detach(ctx context.Context, snapshotID string) error
}
