package clearing

import "errors"

var (
	ErrRoundNotFound    = errors.New("Round not found")
	ErrRoundNotClearing = errors.New("Round is not in clearing state")
	ErrAlreadyCleared   = errors.New("Round has already been cleared")
	ErrResultNotFound   = errors.New("Clear result not found")
)
