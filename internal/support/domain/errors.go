package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound no active room for the requested code
	ErrRoomNotFound = errors.New("room not found")
	// ErrCacheUnavailable ephemeral store failed; callers log and fall
	// back to the durable store, never surface this to the end caller
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// AccessDeniedError caller is neither the owner nor the assigned operator.
// HolderName is filled when another operator holds the room so the caller
// can be told who does.
type AccessDeniedError struct {
	HolderID   string
	HolderName string
}

func (e *AccessDeniedError) Error() string {
	if e.HolderName != "" {
		return fmt.Sprintf("access denied: room is handled by %s", e.HolderName)
	}
	return "access denied"
}

// InvalidTransitionError requested edge is not in the transition graph.
// Hint tells the caller which explicit operation to use instead.
type InvalidTransitionError struct {
	From  RoomState
	Event TransitionEvent
	Hint  string
}

func (e *InvalidTransitionError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid transition %s on %s: %s", e.Event, e.From, e.Hint)
	}
	return fmt.Sprintf("invalid transition %s on %s", e.Event, e.From)
}

// AssignmentConflictError another operator won the assignment race
type AssignmentConflictError struct {
	HolderID   string
	HolderName string
}

func (e *AssignmentConflictError) Error() string {
	return fmt.Sprintf("room already assigned to %s", e.HolderName)
}
