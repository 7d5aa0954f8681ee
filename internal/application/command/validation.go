package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// validate is shared by every command; validator caches struct metadata.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// validateCommand checks the validate tags of cmd and returns a
// VALIDATION_ERROR listing every failed field.
func validateCommand(op string, cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.WrapError("command", op, shared.ErrInvalidInput, "invalid command", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
	}
	return shared.NewDomainError("command", op, shared.ErrValidation, strings.Join(msgs, "; "))
}
