package action

import "errors"

var (
	// ErrUnknownKind is returned for names whose kind segment is not a Kind.
	ErrUnknownKind = errors.New("unknown action kind")

	// ErrInvalidName is returned for names not of the form "<kind>/<key>".
	ErrInvalidName = errors.New("invalid action name")

	// ErrDuplicateAction is returned when a name is registered twice.
	ErrDuplicateAction = errors.New("action already registered")

	// ErrUnknownChannel is wrapped by ChannelManager implementations when the
	// channel does not exist (or no longer does).
	ErrUnknownChannel = errors.New("unknown channel")
)
