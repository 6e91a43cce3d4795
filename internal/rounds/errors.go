package rounds

import "errors"

var (
	ErrInvalidConfig     = errors.New("Invalid round configuration")
	ErrRoundNotFound     = errors.New("Round not found")
	ErrInvalidTransition = errors.New("Round status does not allow this transition")
	ErrVersionConflict   = errors.New("Round was modified concurrently")
)
