// Package apptest provides in-memory fakes of the repositories and
// collaborators used by application tests.
package apptest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/flow"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY STORE
// Writes are staged per transaction and applied on Commit.
// ══════════════════════════════════════════════════════════════════════════════

// Store is a UnitOfWorkFactory over maps. Tests may inspect the maps directly.
type Store struct {
	mu          sync.Mutex
	Flows       map[string]*flow.Flow
	Snapshots   map[string]*snapshot.FlowSnapshot
	Assignments map[string]*assignment.Assignment
	Progress    map[string]*progress.FlowProgress
	Users       map[string]*user.User
	Deleted     map[string]bool
	Commits     int
}

func NewStore() *Store {
	return &Store{
		Flows:       map[string]*flow.Flow{},
		Snapshots:   map[string]*snapshot.FlowSnapshot{},
		Assignments: map[string]*assignment.Assignment{},
		Progress:    map[string]*progress.FlowProgress{},
		Users:       map[string]*user.User{},
		Deleted:     map[string]bool{},
	}
}

func (s *Store) Begin(ctx context.Context) (assignment.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{store: s}, nil
}

func (s *Store) AddUser(id string, role user.Role) *user.User {
	u := &user.User{ID: id, DisplayName: id, Role: role, IsActive: true}
	s.Users[id] = u
	return u
}

func (s *Store) Assignment(t *testing.T, id string) *assignment.Assignment {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.Assignments[id]
	require.True(t, ok, "assignment %s not stored", id)
	return a.Clone()
}

func (s *Store) FlowProgress(t *testing.T, id string) *progress.FlowProgress {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.Progress[id]
	require.True(t, ok, "progress %s not stored", id)
	return cloneProgress(fp)
}

func cloneProgress(fp *progress.FlowProgress) *progress.FlowProgress {
	b, err := json.Marshal(fp)
	if err != nil {
		panic(err)
	}
	var out progress.FlowProgress
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

type memTx struct {
	store  *Store
	writes []func()
	done   bool
}

func (tx *memTx) stage(fn func()) { tx.writes = append(tx.writes, fn) }

func (tx *memTx) Flows() flow.Repository             { return memFlows{tx} }
func (tx *memTx) Snapshots() snapshot.Repository     { return memSnapshots{tx} }
func (tx *memTx) Assignments() assignment.Repository { return memAssignments{tx} }
func (tx *memTx) Progress() progress.Repository      { return memProgress{tx} }
func (tx *memTx) Users() user.Repository             { return memUsers{tx} }

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("transaction already closed")
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, w := range tx.writes {
		w()
	}
	tx.store.Commits++
	tx.writes = nil
	tx.done = true
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	tx.writes = nil
	tx.done = true
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────

type memFlows struct{ tx *memTx }

func (r memFlows) Create(ctx context.Context, f *flow.Flow) error {
	r.tx.stage(func() { r.tx.store.Flows[f.ID] = f })
	return nil
}

func (r memFlows) GetByID(ctx context.Context, id string) (*flow.Flow, error) {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	f, ok := r.tx.store.Flows[id]
	if !ok {
		return nil, flow.ErrFlowNotFound
	}
	return f, nil
}

func (r memFlows) Update(ctx context.Context, f *flow.Flow) error { return r.Create(ctx, f) }

func (r memFlows) Delete(ctx context.Context, id string) error {
	r.tx.stage(func() { delete(r.tx.store.Flows, id) })
	return nil
}

func (r memFlows) ListActive(ctx context.Context, limit, offset int) ([]*flow.Flow, error) {
	return nil, nil
}

type memSnapshots struct{ tx *memTx }

func (r memSnapshots) Create(ctx context.Context, s *snapshot.FlowSnapshot) error {
	cp := *s
	r.tx.stage(func() { r.tx.store.Snapshots[s.ID] = &cp })
	return nil
}

func (r memSnapshots) GetByID(ctx context.Context, id string) (*snapshot.FlowSnapshot, error) {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	s, ok := r.tx.store.Snapshots[id]
	if !ok {
		return nil, snapshot.ErrSnapshotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSnapshots) AttachAssignment(ctx context.Context, snapshotID, assignmentID string) error {
	r.tx.stage(func() {
		if s, ok := r.tx.store.Snapshots[snapshotID]; ok {
			id := assignmentID
			s.AssignmentID = &id
		}
	})
	return nil
}

func (r memSnapshots) Detach(ctx context.Context, snapshotID string) error {
	r.tx.stage(func() {
		if s, ok := r.tx.store.Snapshots[snapshotID]; ok {
			s.AssignmentID = nil
		}
	})
	return nil
}

type memAssignments struct{ tx *memTx }

func (r memAssignments) Create(ctx context.Context, a *assignment.Assignment) error {
	cp := a.Clone()
	r.tx.stage(func() { r.tx.store.Assignments[a.ID] = cp })
	return nil
}

func (r memAssignments) GetByID(ctx context.Context, id string) (*assignment.Assignment, error) {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	a, ok := r.tx.store.Assignments[id]
	if !ok || r.tx.store.Deleted[id] {
		return nil, assignment.ErrAssignmentNotFound
	}
	return a.Clone(), nil
}

func (r memAssignments) Update(ctx context.Context, a *assignment.Assignment) error {
	r.tx.store.mu.Lock()
	stored, ok := r.tx.store.Assignments[a.ID]
	r.tx.store.mu.Unlock()
	if !ok {
		return assignment.ErrAssignmentNotFound
	}
	if stored.Version != a.Version {
		return shared.NewDomainError("assignment", "Update", shared.ErrConcurrentModification, "version mismatch")
	}
	a.Version++
	cp := a.Clone()
	r.tx.stage(func() { r.tx.store.Assignments[a.ID] = cp })
	return nil
}

func (r memAssignments) Delete(ctx context.Context, id string) error {
	r.tx.stage(func() { r.tx.store.Deleted[id] = true })
	return nil
}

func (r memAssignments) active() []*assignment.Assignment {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	var out []*assignment.Assignment
	for id, a := range r.tx.store.Assignments {
		if r.tx.store.Deleted[id] || a.Status.IsTerminal() {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (r memAssignments) FindActiveByUserAndFlow(ctx context.Context, userID, flowID string) (*assignment.Assignment, error) {
	for _, a := range r.active() {
		if a.UserID == userID && a.FlowID == flowID {
			return a.Clone(), nil
		}
	}
	return nil, assignment.ErrAssignmentNotFound
}

func (r memAssignments) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, a := range r.active() {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r memAssignments) ListByUser(ctx context.Context, userID string, opts assignment.ListOptions) ([]*assignment.Assignment, error) {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	var out []*assignment.Assignment
	for id, a := range r.tx.store.Assignments {
		if r.tx.store.Deleted[id] || a.UserID != userID {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, a.Status) {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out, nil
}

func (r memAssignments) FindDueBefore(ctx context.Context, before time.Time, limit int) ([]*assignment.Assignment, error) {
	var out []*assignment.Assignment
	for _, a := range r.active() {
		if !a.IsOverdue && a.Status != assignment.StatusPaused && a.Deadline.Before(before) {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

type memProgress struct{ tx *memTx }

func (r memProgress) Create(ctx context.Context, fp *progress.FlowProgress) error {
	cp := cloneProgress(fp)
	r.tx.stage(func() { r.tx.store.Progress[fp.AssignmentID] = cp })
	return nil
}

func (r memProgress) GetByAssignmentID(ctx context.Context, id string) (*progress.FlowProgress, error) {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	fp, ok := r.tx.store.Progress[id]
	if !ok {
		return nil, progress.ErrProgressNotFound
	}
	return cloneProgress(fp), nil
}

func (r memProgress) Save(ctx context.Context, fp *progress.FlowProgress) error {
	r.tx.store.mu.Lock()
	stored, ok := r.tx.store.Progress[fp.AssignmentID]
	r.tx.store.mu.Unlock()
	if !ok {
		return progress.ErrProgressNotFound
	}
	if stored.Version != fp.Version {
		return shared.NewDomainError("progress", "Save", shared.ErrConcurrentModification, "version mismatch")
	}
	fp.Version++
	cp := cloneProgress(fp)
	r.tx.stage(func() { r.tx.store.Progress[fp.AssignmentID] = cp })
	return nil
}

type memUsers struct{ tx *memTx }

func (r memUsers) GetByID(ctx context.Context, id string) (*user.User, error) {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	u, ok := r.tx.store.Users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	var out []*user.User
	for _, id := range ids {
		if u, err := r.GetByID(ctx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *Publisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *Publisher) Types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}
