package interaction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newContext(t *testing.T, typ content.Type, data any, action Action, actionData any) *Context {
	t.Helper()
	ic := &Context{
		Component: snapshot.ComponentSnapshot{ID: "c1", Type: typ, IsRequired: true, Data: raw(t, data)},
		Progress:  progress.ComponentProgress{ComponentSnapshotID: "c1", Status: progress.ComponentUnlocked},
		Action:    action,
		Now:       now,
	}
	if actionData != nil {
		ic.Data = raw(t, actionData)
	}
	return ic
}

// apply переносит результат в прогресс компонента, как это делает координатор.
func apply(ic *Context, res *Result) {
	ic.Progress.Status = res.NewStatus
	ic.Progress.Progress = res.Progress
	ic.Progress.ProgressData = res.ProgressData
	ic.Progress.CompletedAt = res.CompletedAt
	ic.Progress.TimeSpent += ic.TimeSpent
}

func testEngine() *Engine {
	return NewEngine(DefaultRegistry(DefaultRules()))
}
