package errorz

import (
	"errors"
	"strings"
)

// InvalidInput signals that a provided input is invalid due to the wrapped errors.
type InvalidInput []error

func (e InvalidInput) Error() string {
	var b strings.Builder
	b.WriteString("invalid input:")
	for _, err := range e {
		b.WriteString("\n")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e InvalidInput) Unwrap() []error {
	return e
}

// IsInvalidInput reports whether err (or one of the errors it wraps)
// is an InvalidInput.
func IsInvalidInput(err error) bool {
	var target InvalidInput
	return errors.As(err, &target)
}
