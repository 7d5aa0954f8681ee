package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/flow"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWorkFactory implements assignment.UnitOfWorkFactory over a Connection.
type UnitOfWorkFactory struct {
	conn *Connection
	opts TxOptions
}

// NewUnitOfWorkFactory creates a factory that opens read-committed transactions.
func NewUnitOfWorkFactory(conn *Connection) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{conn: conn, opts: DefaultTxOptions()}
}

// Begin opens a transaction.
func (f *UnitOfWorkFactory) Begin(ctx context.Context) (assignment.UnitOfWork, error) {
	tx, err := f.conn.BeginTx(ctx, f.opts)
	if err != nil {
		return nil, err
	}
	return &UnitOfWork{tx: tx}, nil
}

// UnitOfWork binds every repository to one pgx.Tx.
type UnitOfWork struct {
	tx pgx.Tx
}

func (u *UnitOfWork) Flows() flow.Repository             { return NewFlowRepository(u.tx) }
func (u *UnitOfWork) Snapshots() snapshot.Repository     { return NewSnapshotRepository(u.tx) }
func (u *UnitOfWork) Assignments() assignment.Repository { return NewAssignmentRepository(u.tx) }
func (u *UnitOfWork) Progress() progress.Repository      { return NewProgressRepository(u.tx) }
func (u *UnitOfWork) Users() user.Repository             { return NewUserRepository(u.tx) }

// Commit commits the transaction.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	return nil
}

// Rollback rolls back the transaction. A no-op after Commit.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
