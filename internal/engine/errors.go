package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/guildbot/internal/action"
)

// DispatchError describes why an event never reached an action callback.
type DispatchError struct {
	// Code identifies the error category.
	Code DispatchErrorCode

	// Message is a human-readable description.
	Message string

	// EventID identifies the affected event.
	EventID string

	Kind action.Kind
	Key  string
}

// DispatchErrorCode categorizes dispatch errors.
type DispatchErrorCode string

const (
	// ErrCodeMissingAction indicates no action is registered for the event.
	ErrCodeMissingAction DispatchErrorCode = "MISSING_ACTION"

	// ErrCodeBotEvent indicates the event was authored by a bot and ignored.
	ErrCodeBotEvent DispatchErrorCode = "BOT_EVENT"

	// ErrCodeInvalidEvent indicates the event has an unknown kind or empty name.
	ErrCodeInvalidEvent DispatchErrorCode = "INVALID_EVENT"
)

func (e *DispatchError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.EventID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsMissingActionError reports whether err is an unhandled-event error.
func IsMissingActionError(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code == ErrCodeMissingAction
	}
	return false
}

// IsBotEventError reports whether err is an ignored bot event.
func IsBotEventError(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code == ErrCodeBotEvent
	}
	return false
}

// NewMissingActionError creates a DispatchError for an unhandled event.
func NewMissingActionError(ev action.Event) *DispatchError {
	return &DispatchError{
		Code:    ErrCodeMissingAction,
		Message: fmt.Sprintf("no action registered for %s", ev.ActionName()),
		EventID: ev.ID,
		Kind:    ev.Kind,
		Key:     ev.Key(),
	}
}

// NewBotEventError creates a DispatchError for a bot-authored event.
func NewBotEventError(ev action.Event) *DispatchError {
	return &DispatchError{
		Code:    ErrCodeBotEvent,
		Message: "event authored by a bot",
		EventID: ev.ID,
		Kind:    ev.Kind,
		Key:     ev.Key(),
	}
}

// NewInvalidEventError creates a DispatchError for a malformed event.
func NewInvalidEventError(ev action.Event, reason string) *DispatchError {
	return &DispatchError{
		Code:    ErrCodeInvalidEvent,
		Message: reason,
		EventID: ev.ID,
		Kind:    ev.Kind,
		Key:     ev.Key(),
	}
}
