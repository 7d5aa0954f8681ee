// Package content описывает типы компонентов обучающего потока и их payload'ы.
// Payload компонента хранится как непрозрачный JSON; здесь он типизируется
// и проверяется до того, как чистая логика начнёт ему доверять.
package content

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ══════════════════════════════════════════════════════════════════════════════
// ТИПЫ КОМПОНЕНТОВ
// ══════════════════════════════════════════════════════════════════════════════

// Type - тип компонента.
type Type string

const (
	TypeArticle Type = "article"
	TypeTask    Type = "task"
	TypeQuiz    Type = "quiz"
	TypeVideo   Type = "video"
)

// KnownTypes - все типы, для которых есть обработчики взаимодействий.
var KnownTypes = []Type{TypeArticle, TypeTask, TypeQuiz, TypeVideo}

// IsKnown проверяет, что тип поддерживается движком.
// Неизвестные типы не отвергаются: их данные копируются в снапшот как есть.
func (t Type) IsKnown() bool {
	switch t {
	case TypeArticle, TypeTask, TypeQuiz, TypeVideo:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление типа.
func (t Type) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// ВАЛИДАЦИЯ
// ══════════════════════════════════════════════════════════════════════════════

// contentValidate - общий валидатор для payload'ов компонентов.
var contentValidate *validator.Validate

func init() {
	contentValidate = validator.New(validator.WithRequiredStructEnabled())
	contentValidate.RegisterTagNameFunc(jsonFieldName)
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// ValidateStruct прогоняет теги validate и возвращает человекочитаемые ошибки.
// Пустой срез означает, что структура корректна.
func ValidateStruct(v any) []string {
	err := contentValidate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s) or be >= %s", field, fe.Param(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

// Decode разбирает JSON payload в типизированную структуру.
// Пустой payload трактуется как пустой объект.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// Clone возвращает независимую копию JSON payload'а.
func Clone(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
