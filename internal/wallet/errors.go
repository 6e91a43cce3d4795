package wallet

import "errors"

var (
	ErrInvalidAmount       = errors.New("Amount must be a positive number")
	ErrInsufficientBalance = errors.New("Insufficient available balance")
	ErrHoldNotFound        = errors.New("Hold not found")
	ErrHoldNotActive       = errors.New("Hold is not active")
	ErrCaptureExceedsHold  = errors.New("Capture amount exceeds hold amount")
)
