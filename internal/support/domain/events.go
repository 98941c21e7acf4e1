package domain

import "time"

// Action websocket request action
type Action string

const (
	// ActionJoinRoom websocket action join_room
	ActionJoinRoom Action = "join_room"
	// ActionEnterRoom websocket action enter_room (live subscribe)
	ActionEnterRoom Action = "enter_room"
	// ActionLeaveRoom websocket action leave_room
	ActionLeaveRoom Action = "leave_room"

	// ActionSendMessage websocket action send_message
	ActionSendMessage Action = "send_message"
	// ActionMarkRead websocket action mark_read
	ActionMarkRead Action = "mark_read"
	// ActionGetUnread websocket action get_unread
	ActionGetUnread Action = "get_unread"
	// ActionListRooms websocket action list_rooms
	ActionListRooms Action = "list_rooms"

	// ActionRequestHandoff websocket action request_handoff
	ActionRequestHandoff Action = "request_handoff"
	// ActionCancelHandoff websocket action cancel_handoff
	ActionCancelHandoff Action = "cancel_handoff"
	// ActionAcceptHandoff websocket action accept_handoff
	ActionAcceptHandoff Action = "accept_handoff"
	// ActionIntervene websocket action intervene
	ActionIntervene Action = "intervene"
	// ActionAssistantReturn websocket action assistant_return
	ActionAssistantReturn Action = "assistant_return"

	// ActionNotifyEvent server push of a broadcast room event
	ActionNotifyEvent Action = "notify_event"
)

// WSRequest websocket Request
type WSRequest struct {
	Action    string `json:"action"`
	RoomCode  string `json:"room_code"`
	Content   string `json:"content"`
	MessageID string `json:"message_id"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// EventType broadcast payload shape
type EventType string

const (
	// EventTypeMessage a persisted chat message
	EventTypeMessage EventType = "message"
	// EventTypeRoomState a serving-state change
	EventTypeRoomState EventType = "room_state"
)

// RoomStateInfo serving state as committed by the durable write
type RoomStateInfo struct {
	Current            RoomState  `json:"current"`
	Description        string     `json:"description"`
	OperatorID         string     `json:"operator_id,omitempty"`
	OperatorName       string     `json:"operator_name,omitempty"`
	HandoffRequestedAt *time.Time `json:"handoff_requested_at,omitempty"`
}

// RoomEvent envelope published on the per-room channel. Delivery is
// at-least-once and publish order may trail commit order under
// concurrent senders, so Version carries the room version the durable
// write committed: clients dedupe message events by message id and
// order state by the highest Version seen.
type RoomEvent struct {
	Type      EventType     `json:"type"`
	Message   *Message      `json:"message,omitempty"`
	RoomState RoomStateInfo `json:"room_state"`
	Version   int64         `json:"version"`
}
