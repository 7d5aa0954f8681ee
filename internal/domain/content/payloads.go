package content

// ══════════════════════════════════════════════════════════════════════════════
// ARTICLE
// ══════════════════════════════════════════════════════════════════════════════

// ArticleData - payload статьи.
type ArticleData struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	HTML    string `json:"html,omitempty"`
	// EstimatedReadTime - оценка времени чтения в минутах.
	EstimatedReadTime float64 `json:"estimatedReadTime,omitempty" validate:"gte=0"`
	WordCount         int     `json:"wordCount,omitempty" validate:"gte=0"`
}

// HasText сообщает, есть ли у статьи текст или HTML.
func (a ArticleData) HasText() bool {
	return a.Content != "" || a.HTML != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK
// ══════════════════════════════════════════════════════════════════════════════

// TaskData - payload задания с проверяемым ответом.
type TaskData struct {
	Description        string   `json:"description" validate:"required"`
	CorrectAnswer      string   `json:"correctAnswer,omitempty"`
	ExpectedOutput     string   `json:"expectedOutput,omitempty"`
	AlternativeAnswers []string `json:"alternativeAnswers,omitempty"`
	// Pattern - регулярное выражение, которому должен соответствовать ответ.
	Pattern           string   `json:"pattern,omitempty"`
	AllowPartialMatch bool     `json:"allowPartialMatch,omitempty"`
	CaseSensitive     bool     `json:"caseSensitive,omitempty"`
	TrimWhitespace    *bool    `json:"trimWhitespace,omitempty"`
	MaxAttempts       int      `json:"maxAttempts,omitempty" validate:"gte=0,lte=100"`
	Hint              string   `json:"hint,omitempty"`
	Examples          []string `json:"examples,omitempty"`
	// TimeLimit - ограничение на решение в секундах (0 - без ограничения).
	TimeLimit int `json:"timeLimit,omitempty" validate:"gte=0"`
}

// HasAnswer сообщает, можно ли вообще проверить ответ.
func (t TaskData) HasAnswer() bool {
	if t.CorrectAnswer != "" || t.ExpectedOutput != "" || t.Pattern != "" {
		return true
	}
	for _, a := range t.AlternativeAnswers {
		if a != "" {
			return true
		}
	}
	return false
}

// Trim возвращает настройку обрезки пробелов (по умолчанию включена).
func (t TaskData) Trim() bool {
	return t.TrimWhitespace == nil || *t.TrimWhitespace
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ
// ══════════════════════════════════════════════════════════════════════════════

// QuestionType - тип вопроса квиза.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
)

// QuizOption - вариант ответа.
type QuizOption struct {
	ID        string `json:"id" validate:"required"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// QuizQuestion - вопрос квиза.
type QuizQuestion struct {
	ID          string       `json:"id" validate:"required"`
	Text        string       `json:"text" validate:"required"`
	Type        QuestionType `json:"type,omitempty"`
	Options     []QuizOption `json:"options" validate:"min=2,dive"`
	Points      float64      `json:"points,omitempty" validate:"gte=0"`
	Explanation string       `json:"explanation,omitempty"`
}

// Weight возвращает вес вопроса; вопрос без явных баллов стоит 1.
func (q QuizQuestion) Weight() float64 {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// CorrectOptionIDs возвращает идентификаторы правильных вариантов.
func (q QuizQuestion) CorrectOptionIDs() []string {
	var ids []string
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// HasOption проверяет наличие варианта.
func (q QuizQuestion) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// QuizData - payload квиза.
type QuizData struct {
	Questions    []QuizQuestion `json:"questions" validate:"min=1,dive"`
	PassingScore float64        `json:"passingScore,omitempty" validate:"gte=0,lte=100"`
	MaxAttempts  int            `json:"maxAttempts,omitempty" validate:"gte=0"`
	// TimeLimit - ограничение в секундах (0 - без ограничения).
	TimeLimit int `json:"timeLimit,omitempty" validate:"gte=0"`
}

// Question ищет вопрос по идентификатору.
func (q QuizData) Question(id string) (QuizQuestion, bool) {
	for _, qq := range q.Questions {
		if qq.ID == id {
			return qq, true
		}
	}
	return QuizQuestion{}, false
}

// MaxScore - сумма баллов всех вопросов.
func (q QuizData) MaxScore() float64 {
	var total float64
	for _, qq := range q.Questions {
		total += qq.Weight()
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// VIDEO
// ══════════════════════════════════════════════════════════════════════════════

// Segment - интервал [Start, End] в секундах.
type Segment struct {
	Start float64 `json:"start" validate:"gte=0"`
	End   float64 `json:"end" validate:"gtefield=Start"`
}

// Length возвращает длительность интервала.
func (s Segment) Length() float64 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// VideoData - payload видео.
type VideoData struct {
	URL string `json:"url" validate:"required,url"`
	// Duration - длительность в секундах; может быть неизвестна до первого просмотра.
	Duration           float64   `json:"duration,omitempty" validate:"gte=0"`
	RequireFullWatch   bool      `json:"requireFullWatch,omitempty"`
	MinWatchPercentage float64   `json:"minWatchPercentage,omitempty" validate:"gte=0,lte=100"`
	RequiredSegments   []Segment `json:"requiredSegments,omitempty" validate:"dive"`
	AllowSeekForward   *bool     `json:"allowSeekForward,omitempty"`
	MaxPlaybackRate    float64   `json:"maxPlaybackRate,omitempty" validate:"gte=0"`
}

// SeekForwardAllowed возвращает настройку перемотки вперёд (по умолчанию разрешена).
func (v VideoData) SeekForwardAllowed() bool {
	return v.AllowSeekForward == nil || *v.AllowSeekForward
}
