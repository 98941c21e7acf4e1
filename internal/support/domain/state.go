package domain

// TransitionEvent definition hand-off state machine event
type TransitionEvent string

const (
	// EventRequestHandoff owner asks for a human operator
	EventRequestHandoff TransitionEvent = "request_handoff"
	// EventCancelHandoff owner withdraws the request
	EventCancelHandoff TransitionEvent = "cancel_handoff"
	// EventAcceptHandoff operator accepts a waiting room
	EventAcceptHandoff TransitionEvent = "accept_handoff"
	// EventIntervene operator takes over an assistant-served room
	EventIntervene TransitionEvent = "intervene"
	// EventRelease assigned operator or system returns the room to the assistant
	EventRelease TransitionEvent = "release"
)

// NextState resolve the fixed transition graph. Anything not in the table
// is an InvalidTransitionError; callers must not fall through silently.
func NextState(from RoomState, event TransitionEvent) (RoomState, error) {
	switch from {
	case StateAssistantActive:
		switch event {
		case EventRequestHandoff:
			return StateWaitingForOperator, nil
		case EventIntervene:
			return StateOperatorActive, nil
		}
	case StateWaitingForOperator:
		switch event {
		case EventCancelHandoff:
			return StateAssistantActive, nil
		case EventAcceptHandoff:
			return StateOperatorActive, nil
		}
	case StateOperatorActive:
		if event == EventRelease {
			return StateAssistantActive, nil
		}
	}
	return from, &InvalidTransitionError{From: from, Event: event}
}
