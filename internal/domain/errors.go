package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidParams         = errors.New("invalid order parameters")
	ErrInsufficientBookDepth = errors.New("insufficient book depth")
	ErrInvalidMidPrice       = errors.New("invalid mid price")
	ErrReconnectExhausted    = errors.New("reconnect attempts exhausted")
)
