package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/application/apptest"
	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/achievement"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/flow"
	"github.com/alem-hub/flow-engine/internal/domain/interaction"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/domain/user"
)

type stubAchievements struct {
	award []achievement.Type
	got   []service.ComponentOutcome
	err   error
}

func (s *stubAchievements) CheckComponentAchievements(ctx context.Context, o service.ComponentOutcome) ([]achievement.Achievement, error) {
	s.got = append(s.got, o)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]achievement.Achievement, 0, len(s.award))
	for _, t := range s.award {
		out = append(out, achievement.Achievement{UserID: o.UserID, Type: t, AssignmentID: o.AssignmentID, UnlockedAt: o.At})
	}
	s.award = nil
	return out, nil
}

type stubNotifier struct {
	sent []service.ProgressNotification
	err  error
}

func (s *stubNotifier) SendProgressUpdateNotification(ctx context.Context, a *assignment.Assignment, p service.ProgressNotification) error {
	s.sent = append(s.sent, p)
	return s.err
}

// harness wires command handlers to the in-memory store.
// Users: learner "u1", second learner "u2", mentor "m1", admin "admin".
type harness struct {
	store     *apptest.Store
	clock     *apptest.Clock
	pub       *apptest.Publisher
	ach       *stubAchievements
	notifier  *stubNotifier
	assign    *AssignFlowHandler
	lifecycle *LifecycleHandler
	interact  *InteractHandler
}

func newHarness(t *testing.T, flows ...*flow.Flow) *harness {
	t.Helper()
	h := &harness{
		store:    apptest.NewStore(),
		clock:    apptest.NewClock(apptest.T0),
		pub:      &apptest.Publisher{},
		ach:      &stubAchievements{},
		notifier: &stubNotifier{},
	}
	h.store.AddUser("u1", user.RoleLearner)
	h.store.AddUser("u2", user.RoleLearner)
	h.store.AddUser("m1", user.RoleMentor)
	h.store.AddUser("admin", user.RoleAdmin)
	for _, f := range flows {
		h.store.Flows[f.ID] = f
	}

	builder := snapshot.NewBuilder(apptest.SeqIDs("snap"), h.clock)
	locker := service.NewLocalLocker()

	h.assign = NewAssignFlowHandler(AssignFlowDeps{
		UnitOfWork: h.store,
		Builder:    builder,
		Publisher:  h.pub,
		NewID:      apptest.SeqIDs("asg"),
		Clock:      h.clock,
	}, DefaultAssignFlowConfig())
	h.lifecycle = NewLifecycleHandler(h.store, locker, h.pub, h.clock, nil)

	engine := interaction.NewEngine(interaction.DefaultRegistry(interaction.DefaultRules()))
	h.interact = NewInteractHandler(InteractDeps{
		UnitOfWork:    h.store,
		Engine:        engine,
		Locker:        locker,
		Achievements:  h.ach,
		Notifications: h.notifier,
		Publisher:     h.pub,
		Clock:         h.clock,
	}, DefaultInteractConfig())
	return h
}

func (h *harness) assignTo(t *testing.T, userID, flowID string) *AssignFlowResult {
	t.Helper()
	res, err := h.assign.Handle(context.Background(), AssignFlowCommand{
		UserID:     userID,
		FlowID:     flowID,
		AssignedBy: "m1",
		BuddyIDs:   []string{"m1"},
	})
	require.NoError(t, err)
	return res
}

func (h *harness) transition(t *testing.T, id, actor string, action LifecycleAction) *LifecycleResult {
	t.Helper()
	res, err := h.lifecycle.Handle(context.Background(), LifecycleCommand{AssignmentID: id, ActorID: actor, Action: action})
	require.NoError(t, err)
	return res
}

// componentID returns the snapshot id of the component on the given step.
func componentID(res *AssignFlowResult, stepIdx, compIdx int) string {
	return res.Snapshot.Steps[stepIdx].Components[compIdx].ID
}
