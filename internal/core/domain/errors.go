package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPolicyNotFound       = errors.New("policy not found")
	ErrPolicyNotInitialized = errors.New("policy context not initialized")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUpstream             = errors.New("upstream dependency failure")
	ErrTemporary            = errors.New("temporary failure")
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
