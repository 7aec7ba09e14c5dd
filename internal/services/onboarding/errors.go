package onboarding

import "errors"

// Sentinel errors surfaced by the onboarding services. Stores return
// ErrNotFound (optionally wrapped) for absent rows.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
