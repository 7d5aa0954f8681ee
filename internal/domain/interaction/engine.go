package interaction

import (
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// Engine выполняет одно взаимодействие через обработчик из реестра.
type Engine struct {
	registry *Registry
}

// NewEngine создаёт движок.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// Registry возвращает реестр движка.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Process проверяет и обрабатывает действие. Первая неудачная проверка
// прерывает обработку; состояние компонента при этом не меняется.
func (e *Engine) Process(ic *Context) (*Result, error) {
	h, err := e.registry.Get(ic.Component.Type)
	if err != nil {
		return nil, err
	}
	if !Supports(h, ic.Action) {
		return nil, shared.Errorf(domainName, "Process", shared.ErrValidation, "action %q is not supported by %s components", ic.Action, ic.Component.Type)
	}
	if ic.TimeSpent < 0 {
		return nil, shared.NewDomainError(domainName, "Process", shared.ErrNegativeValue, "time spent cannot be negative")
	}

	if err := h.ValidateSchema(ic.Component.Data).Err("ValidateSchema"); err != nil {
		return nil, err
	}
	if err := h.ValidateActionData(ic.Action, ic.Data).Err("ValidateActionData"); err != nil {
		return nil, err
	}
	if err := h.ValidateBusinessRules(ic); err != nil {
		return nil, err
	}
	return h.ProcessAction(ic)
}

// SupportedActions возвращает действия, доступные для типа компонента.
func (e *Engine) SupportedActions(ic *Context) []Action {
	h, err := e.registry.Get(ic.Component.Type)
	if err != nil {
		return nil
	}
	return h.SupportedActions()
}
