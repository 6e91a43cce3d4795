package bids

import "errors"

var (
	ErrRoundNotFound      = errors.New("Round not found")
	ErrRoundClosed        = errors.New("Round is not accepting bids")
	ErrBelowLotSize       = errors.New("Amount must be a positive multiple of the round lot size")
	ErrMinDeltaOutOfRange = errors.New("Minimum delta must be within the round delta bounds")
	ErrMinDeltaRequired   = errors.New("Limit bids require a minimum delta")
	ErrMarketHasMinDelta  = errors.New("Market bids cannot carry a minimum delta")
	ErrInvalidBidType     = errors.New("Bid type must be market or limit")
	ErrBidNotFound        = errors.New("Bid not found")
	ErrBidNotActive       = errors.New("Bid is not active")
)
