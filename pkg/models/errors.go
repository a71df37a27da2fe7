package models

import "errors"

// Domain error taxonomy. Every failed precondition aborts the whole state
// transition; callers decide whether to retry as a brand-new request.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidActivationCode = errors.New("invalid activation code")
	ErrAlreadyActivated      = errors.New("already activated")
	ErrInvalidVersionNumber  = errors.New("invalid version number")
	ErrIndexOutOfRange       = errors.New("index out of range")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrNoVersions            = errors.New("no versions")
	ErrUnknownFamily         = errors.New("unknown family")
	ErrNoFactoryVersions     = errors.New("no factory versions registered")
	ErrNotSupported          = errors.New("operation not supported for this family")
	ErrInvalidInput          = errors.New("invalid input")
)
