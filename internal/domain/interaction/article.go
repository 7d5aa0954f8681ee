package interaction

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
)

// Действия над статьёй.
const (
	ActionStartReading          Action = "START_READING"
	ActionUpdateReadingProgress Action = "UPDATE_READING_PROGRESS"
	ActionFinishReading         Action = "FINISH_READING"
	ActionMarkCompleted         Action = "MARK_COMPLETED"
)

// ArticleProgressData - накопитель прогресса чтения.
type ArticleProgressData struct {
	ReadingProgress  float64    `json:"readingProgress"`
	ScrollPosition   float64    `json:"scrollPosition,omitempty"`
	FullyRead        bool       `json:"fullyRead,omitempty"`
	EstimatedSeconds float64    `json:"estimatedSeconds"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	LastReadAt       *time.Time `json:"lastReadAt,omitempty"`
}

// ArticleActionData - данные UPDATE_READING_PROGRESS.
type ArticleActionData struct {
	// ReadingProgress - доля прочитанного [0, 1].
	ReadingProgress *float64 `json:"readingProgress" validate:"required,gte=0,lte=1"`
	ScrollPosition  float64  `json:"scrollPosition,omitempty" validate:"gte=0"`
	FullyRead       bool     `json:"fullyRead,omitempty"`
}

// ArticleHandler обрабатывает статьи.
type ArticleHandler struct {
	rules ArticleRules
}

// NewArticleHandler создаёт обработчик статей.
func NewArticleHandler(rules ArticleRules) *ArticleHandler {
	return &ArticleHandler{rules: rules}
}

// Type implements Handler.
func (h *ArticleHandler) Type() content.Type { return content.TypeArticle }

// SupportedActions implements Handler.
func (h *ArticleHandler) SupportedActions() []Action {
	return []Action{ActionStartReading, ActionUpdateReadingProgress, ActionFinishReading, ActionMarkCompleted}
}

// ValidateSchema implements Handler.
func (h *ArticleHandler) ValidateSchema(data json.RawMessage) ValidationResult {
	a, errs := decodeAction[content.ArticleData](data)
	if errs != nil {
		return Invalid(errs...)
	}
	errs = content.ValidateStruct(a)
	if !a.HasText() {
		errs = append(errs, "article needs content or html")
	}
	return fromErrors(errs)
}

// ValidateActionData implements Handler.
func (h *ArticleHandler) ValidateActionData(action Action, data json.RawMessage) ValidationResult {
	if action != ActionUpdateReadingProgress {
		return Valid()
	}
	d, errs := decodeAction[ArticleActionData](data)
	if errs != nil {
		return Invalid(errs...)
	}
	return fromErrors(content.ValidateStruct(d))
}

// ValidateBusinessRules implements Handler. Повторное чтение статьи разрешено.
func (h *ArticleHandler) ValidateBusinessRules(*Context) error {
	return nil
}

// EstimatedReadSeconds оценивает время чтения: estimatedReadTime (минуты),
// иначе wordCount, иначе количество слов в тексте; не меньше MinReadSeconds.
func (h *ArticleHandler) EstimatedReadSeconds(a content.ArticleData) float64 {
	var secs float64
	switch {
	case a.EstimatedReadTime > 0:
		secs = a.EstimatedReadTime * 60
	case a.WordCount > 0:
		secs = float64(a.WordCount) / h.rules.WordsPerMinute * 60
	default:
		text := a.Content
		if text == "" {
			text = stripHTML(a.HTML)
		}
		secs = float64(len(strings.Fields(text))) / h.rules.WordsPerMinute * 60
	}
	return math.Max(secs, h.rules.MinReadSeconds)
}

type articleState struct {
	article   content.ArticleData
	prev      ArticleProgressData
	action    ArticleActionData
	estimated float64
	// accumulated - суммарное время с учётом текущего взаимодействия.
	accumulated float64
}

func (h *ArticleHandler) state(ic *Context) (articleState, error) {
	var st articleState
	a, err := content.Decode[content.ArticleData](ic.Component.Data)
	if err != nil {
		return st, err
	}
	prev, err := content.Decode[ArticleProgressData](ic.Progress.ProgressData)
	if err != nil {
		return st, err
	}
	if ic.Action == ActionUpdateReadingProgress {
		if st.action, err = content.Decode[ArticleActionData](ic.Data); err != nil {
			return st, err
		}
	}
	st.article = a
	st.prev = prev
	st.estimated = h.EstimatedReadSeconds(a)
	st.accumulated = float64(ic.Progress.TimeSpent + ic.TimeSpent)
	return st, nil
}

func (st articleState) readingRatio() float64 {
	r := st.prev.ReadingProgress
	if st.action.ReadingProgress != nil && *st.action.ReadingProgress > r {
		r = *st.action.ReadingProgress
	}
	return r
}

// CalculateProgress implements Handler:
// max(доля прочтения×100, доля времени×100, предыдущий прогресс), не больше 100.
func (h *ArticleHandler) CalculateProgress(ic *Context) (float64, error) {
	st, err := h.state(ic)
	if err != nil {
		return 0, err
	}
	done, _ := h.isCompleted(ic, st)
	if done {
		return 100, nil
	}
	p := math.Max(st.readingRatio()*100, st.accumulated/st.estimated*100)
	p = math.Max(p, ic.Progress.Progress)
	return clamp(p, 0, 100), nil
}

// IsCompleted implements Handler.
func (h *ArticleHandler) IsCompleted(ic *Context) (bool, error) {
	st, err := h.state(ic)
	if err != nil {
		return false, err
	}
	return h.isCompleted(ic, st)
}

func (h *ArticleHandler) isCompleted(ic *Context, st articleState) (bool, error) {
	if ic.Progress.Status == progress.ComponentCompleted {
		return true, nil
	}
	switch {
	case ic.Action == ActionFinishReading || ic.Action == ActionMarkCompleted:
		return true, nil
	case st.action.FullyRead || st.prev.FullyRead:
		return true, nil
	case st.accumulated >= st.estimated*h.rules.CompletionTimeRatio:
		return true, nil
	}
	p := math.Max(st.readingRatio()*100, st.accumulated/st.estimated*100)
	p = math.Max(p, ic.Progress.Progress)
	return p >= h.rules.CompletionProgress, nil
}

// ProcessAction implements Handler.
func (h *ArticleHandler) ProcessAction(ic *Context) (*Result, error) {
	st, err := h.state(ic)
	if err != nil {
		return nil, err
	}

	data := st.prev
	data.EstimatedSeconds = st.estimated
	if data.StartedAt == nil {
		data.StartedAt = ptr(ic.Now)
	}
	data.LastReadAt = ptr(ic.Now)
	data.ReadingProgress = st.readingRatio()
	if ic.Action == ActionUpdateReadingProgress {
		data.ScrollPosition = st.action.ScrollPosition
		data.FullyRead = data.FullyRead || st.action.FullyRead
	}

	done, err := h.isCompleted(ic, st)
	if err != nil {
		return nil, err
	}
	pct, err := h.CalculateProgress(ic)
	if err != nil {
		return nil, err
	}

	res := &Result{NewStatus: progress.ComponentInProgress, Progress: pct}
	if done {
		data.FullyRead = true
		res.NewStatus = progress.ComponentCompleted
		res.Progress = 100
		res.CompletedAt = ic.Progress.CompletedAt
		if res.CompletedAt == nil {
			res.CompletedAt = ptr(ic.Now)
		}
	}

	if res.ProgressData, err = encode(data); err != nil {
		return nil, err
	}
	return res, nil
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
	return htmlTag.ReplaceAllString(s, " ")
}
