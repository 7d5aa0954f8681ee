package interaction

import (
	"sort"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// Registry - таблица диспетчеризации тип → обработчик.
// Создаётся один раз при старте процесса и передаётся явно.
type Registry struct {
	handlers map[content.Type]Handler
}

// NewRegistry создаёт реестр; повторная регистрация типа - ошибка.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[content.Type]Handler, len(handlers))}
	for _, h := range handlers {
		if _, dup := r.handlers[h.Type()]; dup {
			return nil, shared.Errorf(domainName, "Register", shared.ErrAlreadyExists, "handler for %q already registered", h.Type())
		}
		r.handlers[h.Type()] = h
	}
	return r, nil
}

// DefaultRegistry возвращает реестр со всеми встроенными обработчиками.
func DefaultRegistry(rules Rules) *Registry {
	rules = rules.WithDefaults()
	r, _ := NewRegistry(
		NewArticleHandler(rules.Article),
		NewTaskHandler(rules.Task),
		NewQuizHandler(rules.Quiz),
		NewVideoHandler(rules.Video),
	)
	return r
}

// Get возвращает обработчик типа.
func (r *Registry) Get(t content.Type) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, shared.Errorf(domainName, "Dispatch", shared.ErrValidation, "unsupported component type %q", t)
	}
	return h, nil
}

// Types возвращает зарегистрированные типы в детерминированном порядке.
func (r *Registry) Types() []content.Type {
	out := make([]content.Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
