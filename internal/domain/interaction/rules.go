package interaction

// Rules - настраиваемые параметры обработчиков. Значения из payload
// компонента имеют приоритет; Rules задают умолчания.
type Rules struct {
	Article ArticleRules `yaml:"article"`
	Task    TaskRules    `yaml:"task"`
	Quiz    QuizRules    `yaml:"quiz"`
	Video   VideoRules   `yaml:"video"`
}

// ArticleRules - параметры статей.
type ArticleRules struct {
	WordsPerMinute     float64 `yaml:"words_per_minute"`
	MinReadSeconds     float64 `yaml:"min_read_seconds"`
	CompletionProgress float64 `yaml:"completion_progress"`
	// CompletionTimeRatio - доля оценочного времени, достаточная для завершения.
	CompletionTimeRatio float64 `yaml:"completion_time_ratio"`
}

// TaskRules - параметры заданий.
type TaskRules struct {
	DefaultMaxAttempts int `yaml:"default_max_attempts"`
	HintAfterWrong     int `yaml:"hint_after_wrong"`
	ExamplesAfterWrong int `yaml:"examples_after_wrong"`
}

// QuizRules - параметры квизов.
type QuizRules struct {
	DefaultPassingScore float64 `yaml:"default_passing_score"`
}

// VideoRules - параметры видео.
type VideoRules struct {
	DefaultMinWatchPercentage float64 `yaml:"default_min_watch_percentage"`
	FullWatchPercentage       float64 `yaml:"full_watch_percentage"`
	RequiredSegmentCoverage   float64 `yaml:"required_segment_coverage"`
	DefaultMaxPlaybackRate    float64 `yaml:"default_max_playback_rate"`
	// SeekTolerance - допуск в секундах при проверке перемотки вперёд.
	SeekTolerance float64 `yaml:"seek_tolerance"`
}

// DefaultRules возвращает стандартные параметры.
func DefaultRules() Rules {
	return Rules{
		Article: ArticleRules{
			WordsPerMinute:      200,
			MinReadSeconds:      30,
			CompletionProgress:  95,
			CompletionTimeRatio: 0.5,
		},
		Task: TaskRules{
			DefaultMaxAttempts: 3,
			HintAfterWrong:     2,
			ExamplesAfterWrong: 3,
		},
		Quiz: QuizRules{
			DefaultPassingScore: 60,
		},
		Video: VideoRules{
			DefaultMinWatchPercentage: 80,
			FullWatchPercentage:       95,
			RequiredSegmentCoverage:   90,
			DefaultMaxPlaybackRate:    3.0,
			SeekTolerance:             1,
		},
	}
}

// WithDefaults заполняет нулевые поля стандартными значениями.
func (r Rules) WithDefaults() Rules {
	d := DefaultRules()
	setF := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	setI := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setF(&r.Article.WordsPerMinute, d.Article.WordsPerMinute)
	setF(&r.Article.MinReadSeconds, d.Article.MinReadSeconds)
	setF(&r.Article.CompletionProgress, d.Article.CompletionProgress)
	setF(&r.Article.CompletionTimeRatio, d.Article.CompletionTimeRatio)
	setI(&r.Task.DefaultMaxAttempts, d.Task.DefaultMaxAttempts)
	setI(&r.Task.HintAfterWrong, d.Task.HintAfterWrong)
	setI(&r.Task.ExamplesAfterWrong, d.Task.ExamplesAfterWrong)
	setF(&r.Quiz.DefaultPassingScore, d.Quiz.DefaultPassingScore)
	setF(&r.Video.DefaultMinWatchPercentage, d.Video.DefaultMinWatchPercentage)
	setF(&r.Video.FullWatchPercentage, d.Video.FullWatchPercentage)
	setF(&r.Video.RequiredSegmentCoverage, d.Video.RequiredSegmentCoverage)
	setF(&r.Video.DefaultMaxPlaybackRate, d.Video.DefaultMaxPlaybackRate)
	if r.Video.SeekTolerance < 0 {
		r.Video.SeekTolerance = d.Video.SeekTolerance
	}
	return r
}
