package services

import (
	"fmt"

	"github.com/markdave123-py/knowledgevault/internal/core"
)

// userError carries a message that is safe to show to the caller as is.
type userError struct {
	kind error
	msg  string
}

func (e *userError) Error() string { return e.msg }

func (e *userError) Is(target error) bool { return target == e.kind }

func invalid(format string, args ...any) error {
	return &userError{kind: core.ErrInvalidInput, msg: fmt.Sprintf(format, args...)}
}
