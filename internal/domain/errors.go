package domain

import "errors"

var (
	ErrNoResultBackend = errors.New("result backend not configured")
	ErrNoCancelBackend = errors.New("cancel backend not configured")
	ErrNoStateBackend  = errors.New("state backend not configured")
)
