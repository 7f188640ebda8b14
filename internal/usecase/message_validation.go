package usecase

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"petadopt/internal/domain/entity"
)

const (
	errMessageEmpty   = "Message cannot be empty"
	errMessageTooLong = "Message is too long (maximum 5000 characters)"
)

var messageRules = fmt.Sprintf("required,max=%d", entity.MaxMessageLength)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func messageValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateMessage checks a message body after trimming surrounding whitespace.
// Length is counted in characters, not bytes.
func ValidateMessage(text string) ValidationResult {
	err := messageValidator().Var(strings.TrimSpace(text), messageRules)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		if fieldErrs[0].Tag() == "max" {
			return ValidationResult{Error: errMessageTooLong}
		}
	}
	return ValidationResult{Error: errMessageEmpty}
}
