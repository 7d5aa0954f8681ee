package apptest

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/flow"
)

// T0 is a Monday morning used as the default test clock.
var T0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

// SeqIDs returns a deterministic id generator.
func SeqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// RawJSON marshals v or fails the test.
func RawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// OneArticleFlow has one step with one required two-minute article.
func OneArticleFlow(t *testing.T) *flow.Flow {
	t.Helper()
	f, err := flow.NewFlow(flow.NewFlowParams{ID: "flow-1", Title: "Welcome", CreatedBy: "admin"}, T0)
	require.NoError(t, err)
	require.NoError(t, f.AddStep(flow.Step{
		ID: "s1", Order: 1, Title: "Read",
		Components: []flow.ComponentDefinition{{
			ID: "c1", Order: 1, Type: content.TypeArticle, IsRequired: true,
			Data: RawJSON(t, content.ArticleData{Title: "Hello", Content: "Welcome aboard.", EstimatedReadTime: 2}),
		}},
	}, T0))
	f.Activate(T0)
	return f
}

// TwoStepFlow has an article on step 1 and a task on step 2.
func TwoStepFlow(t *testing.T) *flow.Flow {
	t.Helper()
	f, err := flow.NewFlow(flow.NewFlowParams{ID: "flow-2", Title: "Basics", CreatedBy: "admin"}, T0)
	require.NoError(t, err)
	require.NoError(t, f.AddStep(flow.Step{
		ID: "s1", Order: 1, Title: "Read",
		Components: []flow.ComponentDefinition{{
			ID: "c1", Order: 1, Type: content.TypeArticle, IsRequired: true,
			Data: RawJSON(t, content.ArticleData{Content: "Intro text."}),
		}},
	}, T0))
	require.NoError(t, f.AddStep(flow.Step{
		ID: "s2", Order: 2, Title: "Practice",
		Components: []flow.ComponentDefinition{{
			ID: "c2", Order: 1, Type: content.TypeTask, IsRequired: true,
			Data: RawJSON(t, map[string]any{"description": "Capital of France?", "correctAnswer": "Paris"}),
		}},
	}, T0))
	f.Activate(T0)
	return f
}

// Clock is a manually advanced timeutil.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

// Now implements timeutil.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
