package domain

import (
	"fmt"
	"strings"
	"time"
)

// RoomState definition support room serving state
type RoomState string

const (
	// StateAssistantActive room is served by the automated assistant
	StateAssistantActive RoomState = "ASSISTANT_ACTIVE"
	// StateWaitingForOperator owner asked for a human operator
	StateWaitingForOperator RoomState = "WAITING_FOR_OPERATOR"
	// StateOperatorActive a human operator is assigned
	StateOperatorActive RoomState = "OPERATOR_ACTIVE"
)

// Describe human readable state description for broadcast payloads
func (s RoomState) Describe() string {
	switch s {
	case StateAssistantActive:
		return "assistant is answering"
	case StateWaitingForOperator:
		return "waiting for an operator"
	case StateOperatorActive:
		return "operator is answering"
	}
	return "unknown"
}

// ParticipantType definition who acts inside a room
type ParticipantType string

const (
	// ParticipantOwner the non-operator participant who opened the room
	ParticipantOwner ParticipantType = "OWNER"
	// ParticipantOperator a human support agent
	ParticipantOperator ParticipantType = "OPERATOR"
	// ParticipantAssistant the automated responder
	ParticipantAssistant ParticipantType = "ASSISTANT"
	// ParticipantSystem synthetic transition messages
	ParticipantSystem ParticipantType = "SYSTEM"
)

const (
	generalRoomPrefix = "support"
	scopedRoomPrefix  = "expo"
)

// Room one conversation between an owner and the support side
type Room struct {
	RoomCode             string          `json:"room_code"`
	OwnerID              string          `json:"owner_id"`
	OwnerName            string          `json:"owner_name"`
	ScopeID              *string         `json:"scope_id,omitempty"`
	State                RoomState       `json:"state"`
	AssignedOperatorID   *string         `json:"assigned_operator_id,omitempty"`
	OperatorName         string          `json:"operator_name,omitempty"`
	LastOperatorActiveAt *time.Time      `json:"last_operator_active_at,omitempty"`
	ReadStatus           ReadStatus      `json:"read_status,omitempty"`
	LastMessageID        string          `json:"last_message_id,omitempty"`
	LastMessagePreview   string          `json:"last_message_preview,omitempty"`
	LastMessageAt        *time.Time      `json:"last_message_at,omitempty"`
	IsActive             bool            `json:"is_active"`
	HandoffRequestedAt   *time.Time      `json:"handoff_requested_at,omitempty"`
	Version              int64           `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
}

// NewRoom build a fresh assistant-served room for the given code
func NewRoom(roomCode, ownerID, ownerName string, scopeID *string) *Room {
	return &Room{
		RoomCode:   roomCode,
		OwnerID:    ownerID,
		OwnerName:  ownerName,
		ScopeID:    scopeID,
		State:      StateAssistantActive,
		ReadStatus: ReadStatus{},
		IsActive:   true,
		Version:    1,
		CreatedAt:  time.Now().UTC(),
	}
}

// IsGeneralSupport true when the room is not scoped to a topic
func (r *Room) IsGeneralSupport() bool {
	return r.ScopeID == nil
}

// AssignedTo true when operatorID currently holds the room
func (r *Room) AssignedTo(operatorID string) bool {
	return r.AssignedOperatorID != nil && *r.AssignedOperatorID == operatorID
}

// AssignmentConsistent assignment is set exactly in OPERATOR_ACTIVE
func (r *Room) AssignmentConsistent() bool {
	if r.State == StateOperatorActive {
		return r.AssignedOperatorID != nil
	}
	return r.AssignedOperatorID == nil
}

// StateInfo snapshot of the serving state as committed, attached to every
// broadcast event so clients never see a message without the state that
// produced it.
func (r *Room) StateInfo() RoomStateInfo {
	info := RoomStateInfo{
		Current:     r.State,
		Description: r.State.Describe(),
	}
	switch r.State {
	case StateOperatorActive:
		if r.AssignedOperatorID != nil {
			info.OperatorID = *r.AssignedOperatorID
		}
		info.OperatorName = r.OperatorName
	case StateWaitingForOperator:
		info.HandoffRequestedAt = r.HandoffRequestedAt
	}
	return info
}

// GeneralRoomCode room code for an owner's general support conversation
func GeneralRoomCode(ownerID string) string {
	return generalRoomPrefix + ":" + ownerID
}

// ScopedRoomCode room code for a conversation scoped to one expo topic
func ScopedRoomCode(scopeID, ownerID string) string {
	return scopedRoomPrefix + ":" + scopeID + ":" + ownerID
}

// ParseRoomCode split a room code into owner and optional scope
func ParseRoomCode(roomCode string) (ownerID string, scopeID *string, err error) {
	parts := strings.Split(roomCode, ":")
	switch {
	case len(parts) == 2 && parts[0] == generalRoomPrefix && parts[1] != "":
		return parts[1], nil, nil
	case len(parts) == 3 && parts[0] == scopedRoomPrefix && parts[1] != "" && parts[2] != "":
		scope := parts[1]
		return parts[2], &scope, nil
	}
	return "", nil, fmt.Errorf("malformed room code %q", roomCode)
}
