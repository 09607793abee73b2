package connection

import "errors"

var (
	ErrAlreadyNegotiated   = errors.New("connection already negotiated")
	ErrInvalidSpec         = errors.New("invalid session description")
	ErrNotImplemented      = errors.New("not implemented")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrTerminated          = errors.New("connection terminated")
)
