package domain

// TargetSenderTypes message sender types the viewer is expected to read.
// Owners read the support side; the support side reads the owner.
func TargetSenderTypes(viewer ParticipantType) []ParticipantType {
	if viewer == ParticipantOwner {
		return []ParticipantType{ParticipantOperator, ParticipantAssistant}
	}
	return []ParticipantType{ParticipantOwner}
}

// ViewerLastRead the cursor unread counting compares against. Owners use
// their own tag. On the support side of a general-support room the
// assistant and operator cursors are interchangeable, so the furthest one
// wins; a topic-scoped room keeps the operator cursor authoritative.
func ViewerLastRead(room *Room, viewer ParticipantType) string {
	if viewer == ParticipantOwner {
		return room.ReadStatus.LastRead(ParticipantOwner)
	}
	if room.IsGeneralSupport() {
		return room.ReadStatus.MaxLastRead(ParticipantOperator, ParticipantAssistant)
	}
	return room.ReadStatus.LastRead(ParticipantOperator)
}

// MessageUnreadFlag 1 when the message's intended reader has not read past
// it yet, 0 otherwise. Used for list rendering.
func MessageUnreadFlag(msg *Message, room *Room) int {
	var lastRead string
	switch msg.SenderType {
	case ParticipantOwner:
		lastRead = ViewerLastRead(room, ParticipantOperator)
	case ParticipantOperator, ParticipantAssistant:
		lastRead = ViewerLastRead(room, ParticipantOwner)
	default:
		// SYSTEM messages carry no unread semantics
		return 0
	}
	if msg.ID > lastRead {
		return 1
	}
	return 0
}

// CountUnread messages from the target sender types with an id past the
// cursor. An empty cursor counts every matching message.
func CountUnread(msgs []Message, targets []ParticipantType, lastRead string) int {
	count := 0
	for i := range msgs {
		if !senderTypeIn(msgs[i].SenderType, targets) {
			continue
		}
		if msgs[i].ID > lastRead {
			count++
		}
	}
	return count
}

func senderTypeIn(t ParticipantType, set []ParticipantType) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}
