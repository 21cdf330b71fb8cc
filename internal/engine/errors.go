package engine

import "errors"

var (
	ErrAlreadyRegistered     = errors.New("player already registered")
	ErrNotRegistered         = errors.New("player not registered")
	ErrTradeAlreadyActive    = errors.New("player already has an active trade")
	ErrNoActiveTrade         = errors.New("player has no active trade")
	ErrCloseAlreadyRequested = errors.New("manual close already requested")
	ErrInvalidMargin         = errors.New("margin must be positive and at most the player balance")
	ErrInvalidLeverage       = errors.New("leverage must be between 1 and 500")
	ErrUnauthorized          = errors.New("caller is not authorized")
)
