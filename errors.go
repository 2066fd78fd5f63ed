package tablegrid

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrEmptySelection is returned when a delete is requested with nothing selected.
	// It is matched through errors.Is by the *ValidationError the grid returns.
	ErrEmptySelection = errors.New("select at least one record")
	// ErrReadOnly is returned by mutations on a read-only definition.
	ErrReadOnly = errors.New("grid is read-only")
	// ErrUnknownQuickFilter is returned for a quick filter name the definition lacks.
	ErrUnknownQuickFilter = errors.New("unknown quick filter")
)

// ValidationError lists the offending fields and the reason for each.
type ValidationError struct {
	Fields map[string]string
	cause  error
}

func emptySelection() *ValidationError {
	return &ValidationError{Fields: map[string]string{"selection": ErrEmptySelection.Error()}, cause: ErrEmptySelection}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation || (e.cause != nil && target == e.cause) {
		return true
	}
	t, ok := target.(*ValidationError)
	return ok && t == e
}
