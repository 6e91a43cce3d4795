package settlement

import "errors"

var (
	ErrRoundNotFound            = errors.New("Round not found")
	ErrRoundNotCleared          = errors.New("Round has not been cleared")
	ErrSettlementRetryExhausted = errors.New("Settlement retries exhausted")
)
