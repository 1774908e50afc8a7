package flow

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidComposition rejects a malformed tree at construction time.
	ErrInvalidComposition = errors.New("invalid composition")
	// ErrAlreadyBuilt rejects a second build of the same pipeline or group.
	ErrAlreadyBuilt = errors.New("composition already built")
	// ErrNoBroker is returned by operations that need a broker when none was given.
	ErrNoBroker = errors.New("broker is required")
)

// ValidationError aggregates composition document issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "composition document invalid"
	}
	return "composition document invalid: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidComposition
}
