package domain

import "errors"

var (
	ErrCallInProgress    = errors.New("a call is already in progress")
	ErrNoActiveCall      = errors.New("no active call")
	ErrNoIncomingCall    = errors.New("no incoming call to answer")
	ErrCredentialFailure = errors.New("join credential unavailable")
	ErrConnectFailure    = errors.New("media connect failed")
	ErrPermissionDenied  = errors.New("media capture permission denied")
	ErrSignalDelivery    = errors.New("signal delivery failed")
	ErrUnknownSignalKind = errors.New("unknown signal kind")
	ErrContactNotFound   = errors.New("contact not found")
)
