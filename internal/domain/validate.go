package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/conorfennell/knolcards/internal/delay"
)

// NewValidator returns a validator that also understands the "notblank",
// "delay" and "maxdelay" tags. "delay" accepts absolute durations and
// coefficients after trimming, "maxdelay" only absolute durations up to
// delay.MaxDelayLimit.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for empty tags or nil functions.
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("delay", func(fl validator.FieldLevel) bool {
		return delay.Valid(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation("maxdelay", func(fl validator.FieldLevel) bool {
		return delay.WithinLimit(strings.TrimSpace(fl.Field().String()))
	})
	return v
}
