package controller

import "errors"

var (
	// ErrPositionNotFound is returned when a referenced position id is unknown.
	ErrPositionNotFound = errors.New("position not found")

	// ErrSignalNotFound is returned when a referenced signal id is unknown.
	ErrSignalNotFound = errors.New("signal not found")

	// ErrInvalidState rejects an operation against an entity whose status no
	// longer allows it (closing a closed position, approving a non-pending
	// signal). No partial mutation occurs.
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientHoldings rejects a sell that would exceed what the bot
	// itself purchased.
	ErrInsufficientHoldings = errors.New("insufficient bot holdings")
)
