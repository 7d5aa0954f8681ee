package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/flow"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// BuildContext - контекст создания снапшота.
type BuildContext struct {
	AssignmentID string
	CreatedBy    string
	Metadata     map[string]any
}

// Stats - статистика построения снапшота.
type Stats struct {
	TotalSteps      int   `json:"totalSteps"`
	TotalComponents int   `json:"totalComponents"`
	CreationTimeMs  int64 `json:"creationTimeMs"`
	// SnapshotSize - размер канонического JSON в байтах.
	SnapshotSize int `json:"snapshotSize"`
}

// Builder строит снапшоты из полностью загруженных потоков.
type Builder struct {
	newID func() string
	clock timeutil.Clock
}

// NewBuilder создаёт билдер. newID генерирует идентификаторы снапшота, шагов и компонентов.
func NewBuilder(newID func() string, clock timeutil.Clock) *Builder {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &Builder{newID: newID, clock: clock}
}

// Build создаёт структурную копию потока. Ни один срез или payload
// результата не разделяет память с шаблоном.
func (b *Builder) Build(f *flow.Flow, bc BuildContext) (*FlowSnapshot, Stats, error) {
	started := time.Now()

	if f == nil {
		return nil, Stats{}, shared.NewDomainError(domainName, "Build", shared.ErrValidation, "flow is required")
	}
	if !f.IsReady() {
		return nil, Stats{}, ErrFlowNotReady
	}

	var metadata json.RawMessage
	if len(bc.Metadata) > 0 {
		raw, err := json.Marshal(bc.Metadata)
		if err != nil {
			return nil, Stats{}, shared.WrapError(domainName, "Build", shared.ErrInvalidInput, "metadata is not serializable", err)
		}
		metadata = raw
	}

	snap := &FlowSnapshot{
		ID:                  b.newID(),
		CreatedAt:           b.clock.Now(),
		Title:               f.Title,
		Description:         f.Description,
		OriginalFlowID:      f.ID,
		OriginalFlowVersion: f.Version,
		CreatedBy:           bc.CreatedBy,
		Metadata:            metadata,
		Steps:               make([]StepSnapshot, 0, len(f.Steps)),
	}
	if bc.AssignmentID != "" {
		id := bc.AssignmentID
		snap.AssignmentID = &id
	}

	totalComponents := 0
	for _, st := range f.Steps {
		ss := StepSnapshot{
			ID:             b.newID(),
			OriginalStepID: st.ID,
			Order:          st.Order,
			Title:          st.Title,
			Description:    st.Description,
			Components:     make([]ComponentSnapshot, 0, len(st.Components)),
		}
		for _, c := range st.Components {
			ss.Components = append(ss.Components, ComponentSnapshot{
				ID:                  b.newID(),
				OriginalComponentID: c.ID,
				Order:               c.Order,
				IsRequired:          c.IsRequired,
				Type:                c.Type,
				TypeVersion:         c.TypeVersion,
				Data:                content.Clone(c.Data),
			})
		}
		totalComponents += len(ss.Components)
		snap.Steps = append(snap.Steps, ss)
	}

	canonical, err := canonicalJSON(snap)
	if err != nil {
		return nil, Stats{}, shared.WrapError(domainName, "Build", shared.ErrInvalidInput, "component data is not valid JSON", err)
	}
	sum := blake2b.Sum256(canonical)
	snap.Checksum = hex.EncodeToString(sum[:])

	stats := Stats{
		TotalSteps:      len(snap.Steps),
		TotalComponents: totalComponents,
		CreationTimeMs:  time.Since(started).Milliseconds(),
		SnapshotSize:    len(canonical),
	}
	return snap, stats, nil
}

// VerifyChecksum пересчитывает контрольную сумму и сравнивает с сохранённой.
func VerifyChecksum(s *FlowSnapshot) (bool, error) {
	canonical, err := canonicalJSON(s)
	if err != nil {
		return false, err
	}
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:]) == s.Checksum, nil
}

// canonicalView - содержимое, покрываемое контрольной суммой.
// Идентификаторы, время и обратная ссылка на назначение в него не входят.
type canonicalView struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	FlowID      string          `json:"flowId"`
	FlowVersion int             `json:"flowVersion"`
	Steps       []canonicalStep `json:"steps"`
}

type canonicalStep struct {
	Order       int                  `json:"order"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Components  []canonicalComponent `json:"components"`
}

type canonicalComponent struct {
	Order       int             `json:"order"`
	Required    bool            `json:"required"`
	Type        content.Type    `json:"type"`
	TypeVersion int             `json:"typeVersion"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func canonicalJSON(s *FlowSnapshot) ([]byte, error) {
	view := canonicalView{
		Title:       s.Title,
		Description: s.Description,
		FlowID:      s.OriginalFlowID,
		FlowVersion: s.OriginalFlowVersion,
		Steps:       make([]canonicalStep, 0, len(s.Steps)),
	}
	for _, st := range s.Steps {
		cs := canonicalStep{Order: st.Order, Title: st.Title, Description: st.Description}
		for _, c := range st.Components {
			cs.Components = append(cs.Components, canonicalComponent{
				Order:       c.Order,
				Required:    c.IsRequired,
				Type:        c.Type,
				TypeVersion: c.TypeVersion,
				Data:        c.Data,
			})
		}
		view.Steps = append(view.Steps, cs)
	}
	out, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("canonical snapshot: %w", err)
	}
	return out, nil
}
