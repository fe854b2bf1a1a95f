package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrValidation        = errors.New("validation failed")
	ErrNoQuote           = errors.New("no quote available")
	ErrNoActiveStrategy  = errors.New("no active strategy")
	ErrDuplicate         = errors.New("duplicate signal")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMarketClosed      = errors.New("market closed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrContextDone       = errors.New("context cancelled")
)
