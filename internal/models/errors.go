package models

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by session stores for unknown ids
var ErrSessionNotFound = errors.New("chat session not found")

// ErrPlanNotFound is returned by plan stores for unknown ids
var ErrPlanNotFound = errors.New("diet plan not found")

// ValidationError reports caller-supplied input that failed boundary checks
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
