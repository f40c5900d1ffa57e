package search

import (
	"fmt"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// OptionsError reports a rejected search option.
type OptionsError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid search options: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *OptionsError) Unwrap() error {
	return domain.ErrInvalidOptions
}

func invalidOptions(field, message string) *OptionsError {
	return &OptionsError{Field: field, Message: message}
}

func invalidOptionsf(field, format string, args ...any) *OptionsError {
	return &OptionsError{Field: field, Message: fmt.Sprintf(format, args...)}
}
