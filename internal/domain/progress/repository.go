package progress

import "context"

// Repository определяет операции с прогрессом.
type Repository interface {
	// Create сохраняет начальный прогресс назначения со всеми шагами и компонентами.
	Create(ctx context.Context, fp *FlowProgress) error

	// GetByAssignmentID возвращает прогресс. Возвращает ErrProgressNotFound, если не найден.
	GetByAssignmentID(ctx context.Context, assignmentID string) (*FlowProgress, error)

	// Save сохраняет агрегат целиком, если версия совпадает с fp.Version,
	// и увеличивает fp.Version. Иначе возвращает shared.ErrConcurrentModification.
	Save(ctx context.Context, fp *FlowProgress) error
}
