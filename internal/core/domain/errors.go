package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCaseNotFound      = errors.New("case not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid case transition")
	ErrTemporary         = errors.New("temporary failure")

	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")

	ErrClassificationUnavailable = errors.New("classification unavailable")
	ErrUnparsableVerdict         = errors.New("unparsable verdict")

	ErrStorageUnavailable = errors.New("storage unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
