package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/repository"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/logger"
)

const (
	// recentWindow messages kept in the cache ring and handed to the
	// responder as context
	recentWindow = 20

	summarizeTimeout = 10 * time.Second
)

// HandoffUseCase sequences every inbound event: access check, transition,
// durable write, cache mirror, broadcast. Durable writes are the
// correctness boundary; everything after them is best-effort.
type HandoffUseCase struct {
	roomRepo    repository.RoomRepository
	msgRepo     repository.MessageRepository
	cache       repository.RoomCache
	broadcaster repository.Broadcaster
	responder   ResponderClient
}

// NewHandoffUseCase init the hand-off orchestrator
func NewHandoffUseCase(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	cache repository.RoomCache,
	broadcaster repository.Broadcaster,
	responder ResponderClient,
) *HandoffUseCase {
	return &HandoffUseCase{
		roomRepo:    roomRepo,
		msgRepo:     msgRepo,
		cache:       cache,
		broadcaster: broadcaster,
		responder:   responder,
	}
}

// SendMessage persist an owner or operator message and fan it out. Owner
// messages in an assistant-served or waiting room also trigger the
// automated reply.
func (uc *HandoffUseCase) SendMessage(ctx context.Context, roomCode, senderID, senderName string, role domain.ParticipantType, content string) (*domain.Message, error) {
	room, err := uc.fetchRoom(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	switch role {
	case domain.ParticipantOwner:
		if room.OwnerID != senderID {
			return nil, &domain.AccessDeniedError{}
		}
	case domain.ParticipantOperator:
		if room.State != domain.StateOperatorActive {
			return nil, &domain.InvalidTransitionError{
				From:  room.State,
				Event: domain.EventIntervene,
				Hint:  "take the room over with intervene or accept_handoff before posting",
			}
		}
		if !room.AssignedTo(senderID) {
			return nil, accessDeniedByHolder(room)
		}
	default:
		return nil, &domain.AccessDeniedError{}
	}

	msg := domain.NewMessage(roomCode, role, senderID, senderName, content)
	room, err = uc.commitMessage(ctx, room, msg)
	if err != nil {
		return nil, err
	}

	// automated reply runs after the owner's write committed and outside
	// any room-level contention
	if role == domain.ParticipantOwner && room.State != domain.StateOperatorActive {
		uc.assistantReply(ctx, room)
	}
	return msg, nil
}

// RequestHandoff owner asks for a human operator. Returns the persisted
// system message marking the request.
func (uc *HandoffUseCase) RequestHandoff(ctx context.Context, roomCode, callerID string) (*domain.Message, error) {
	room, err := uc.requireRoom(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if room.OwnerID != callerID {
		return nil, &domain.AccessDeniedError{}
	}
	if _, err := domain.NextState(room.State, domain.EventRequestHandoff); err != nil {
		return nil, err
	}

	updated, err := uc.roomRepo.UpdateState(ctx, roomCode,
		domain.StateAssistantActive, domain.StateWaitingForOperator, true)
	if err != nil {
		return nil, err
	}
	uc.invalidate(ctx, roomCode)
	uc.broadcastState(ctx, updated)

	sysMsg := domain.NewMessage(roomCode, domain.ParticipantSystem, systemSenderID, systemSenderName,
		"상담원 연결을 요청했습니다.")
	if _, err := uc.commitMessage(ctx, updated, sysMsg); err != nil {
		return nil, err
	}

	// summary request for the operator-to-be, never under a room lock
	go uc.summarize(roomCode)

	return sysMsg, nil
}

// CancelHandoff owner withdraws the operator request
func (uc *HandoffUseCase) CancelHandoff(ctx context.Context, roomCode, callerID string) error {
	room, err := uc.requireRoom(ctx, roomCode)
	if err != nil {
		return err
	}
	if room.OwnerID != callerID {
		return &domain.AccessDeniedError{}
	}
	if _, err := domain.NextState(room.State, domain.EventCancelHandoff); err != nil {
		return err
	}

	updated, err := uc.roomRepo.UpdateState(ctx, roomCode,
		domain.StateWaitingForOperator, domain.StateAssistantActive, false)
	if err != nil {
		return err
	}
	uc.invalidate(ctx, roomCode)
	uc.broadcastState(ctx, updated)
	return nil
}

// AcceptHandoff operator takes a waiting room. Exactly one concurrent
// caller wins; the rest get an AssignmentConflictError naming the winner.
// Re-invocation by the holder only refreshes the activity timestamp.
func (uc *HandoffUseCase) AcceptHandoff(ctx context.Context, roomCode, operatorID, operatorName string) (*domain.Room, error) {
	return uc.assign(ctx, roomCode, operatorID, operatorName, domain.EventAcceptHandoff)
}

// ProactiveIntervene operator takes over an assistant-served room without
// an owner request
func (uc *HandoffUseCase) ProactiveIntervene(ctx context.Context, roomCode, operatorID, operatorName string) (*domain.Room, error) {
	return uc.assign(ctx, roomCode, operatorID, operatorName, domain.EventIntervene)
}

func (uc *HandoffUseCase) assign(ctx context.Context, roomCode, operatorID, operatorName string, event domain.TransitionEvent) (*domain.Room, error) {
	room, err := uc.requireRoom(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if _, err := domain.NextState(room.State, event); err != nil {
		// the holder calling again is a heartbeat, not a new assignment
		if !(room.State == domain.StateOperatorActive && room.AssignedTo(operatorID)) {
			if event == domain.EventAcceptHandoff && room.State == domain.StateAssistantActive {
				return nil, &domain.InvalidTransitionError{
					From:  room.State,
					Event: event,
					Hint:  "room is not waiting; use intervene to take it over",
				}
			}
			return nil, err
		}
	}
	// the from-state rides into the check-and-set predicate, so success
	// proves the room was still in this state at update time — a cancel
	// that races an accept makes the assignment lose, never land
	updated, acquired, err := uc.roomRepo.TryAssign(ctx, roomCode, operatorID, operatorName, room.State)
	if err != nil {
		return nil, err
	}
	uc.invalidate(ctx, roomCode)
	uc.broadcastState(ctx, updated)

	// acquired is decided by the check-and-set, so the hand-off marker is
	// written exactly once no matter how many accepts raced
	if acquired && room.State == domain.StateWaitingForOperator {
		sysMsg := domain.NewMessage(roomCode, domain.ParticipantSystem, systemSenderID, systemSenderName,
			fmt.Sprintf("상담원 %s 님이 연결되었습니다.", operatorName))
		if after, err := uc.commitMessage(ctx, updated, sysMsg); err != nil {
			logger.Log.Error("handoff marker persist", zap.String("room", roomCode), zap.Error(err))
		} else {
			updated = after
		}
	}
	return updated, nil
}

// RequestAssistantReturn release the room back to the assistant. Allowed
// for the assigned operator, or for the owner as a system-initiated
// release.
func (uc *HandoffUseCase) RequestAssistantReturn(ctx context.Context, roomCode, callerID string, role domain.ParticipantType) error {
	room, err := uc.requireRoom(ctx, roomCode)
	if err != nil {
		return err
	}
	system := false
	if role == domain.ParticipantOwner {
		if room.OwnerID != callerID {
			return &domain.AccessDeniedError{}
		}
		system = true
	}

	updated, err := uc.roomRepo.Release(ctx, roomCode, callerID, system)
	if err != nil {
		return err
	}
	uc.invalidate(ctx, roomCode)
	uc.broadcastState(ctx, updated)

	sysMsg := domain.NewMessage(roomCode, domain.ParticipantSystem, systemSenderID, systemSenderName,
		"대화가 자동 응답으로 전환되었습니다.")
	if _, err := uc.commitMessage(ctx, updated, sysMsg); err != nil {
		logger.Log.Error("return marker persist", zap.String("room", roomCode), zap.Error(err))
	}
	return nil
}

// ---- internals ----

// fetchRoom snapshot cache first, durable store on miss or cache failure
func (uc *HandoffUseCase) fetchRoom(ctx context.Context, roomCode string) (*domain.Room, error) {
	room, err := uc.cache.GetSnapshot(ctx, roomCode)
	if err != nil {
		logger.Log.Warn("snapshot cache read", zap.String("room", roomCode), zap.Error(err))
	}
	if room != nil {
		return room, nil
	}
	return uc.requireRoom(ctx, roomCode)
}

// requireRoom durable-store read; absence is ErrRoomNotFound
func (uc *HandoffUseCase) requireRoom(ctx context.Context, roomCode string) (*domain.Room, error) {
	room, err := uc.roomRepo.FindByCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// commitMessage durable write, then cache mirror, then broadcast, so the
// published event always reflects a committed state. Publishes from
// concurrent senders are not serialized against each other; the event's
// Version carries the commit order for subscribers.
func (uc *HandoffUseCase) commitMessage(ctx context.Context, room *domain.Room, msg *domain.Message) (*domain.Room, error) {
	if err := uc.msgRepo.Insert(ctx, msg); err != nil {
		return nil, err
	}
	updated, err := uc.roomRepo.SaveMessageMeta(ctx, room.RoomCode, msg)
	if err != nil {
		return nil, err
	}

	uc.mirrorMessage(ctx, updated, msg)

	if err := uc.broadcaster.Publish(ctx, updated.RoomCode, domain.RoomEvent{
		Type:      domain.EventTypeMessage,
		Message:   msg,
		RoomState: updated.StateInfo(),
		Version:   updated.Version,
	}); err != nil {
		logger.Log.Error("message broadcast", zap.String("room", updated.RoomCode), zap.Error(err))
	}
	return updated, nil
}

// mirrorMessage best-effort cache writes; failures never fail the caller
func (uc *HandoffUseCase) mirrorMessage(ctx context.Context, room *domain.Room, msg *domain.Message) {
	if err := uc.cache.PushRecent(ctx, room.RoomCode, msg); err != nil {
		logger.Log.Warn("recent ring update", zap.String("room", room.RoomCode), zap.Error(err))
	}
	if err := uc.cache.SetSnapshot(ctx, room); err != nil {
		logger.Log.Warn("snapshot mirror", zap.String("room", room.RoomCode), zap.Error(err))
	}

	// optimistic unread increment for the counterpart viewer
	switch msg.SenderType {
	case domain.ParticipantOwner:
		if room.AssignedOperatorID != nil {
			if err := uc.cache.IncrUnread(ctx, room.RoomCode, *room.AssignedOperatorID); err != nil {
				logger.Log.Warn("unread incr", zap.String("room", room.RoomCode), zap.Error(err))
			}
		}
	case domain.ParticipantOperator, domain.ParticipantAssistant:
		if err := uc.cache.IncrUnread(ctx, room.RoomCode, room.OwnerID); err != nil {
			logger.Log.Warn("unread incr", zap.String("room", room.RoomCode), zap.Error(err))
		}
	}
}

func (uc *HandoffUseCase) assistantReply(ctx context.Context, room *domain.Room) {
	window := uc.conversationWindow(ctx, room.RoomCode)
	content, err := uc.responder.Generate(ctx, room.RoomCode, window)
	if err != nil {
		logger.Log.Error("assistant generate", zap.String("room", room.RoomCode), zap.Error(err))
		content = assistantApology
	}
	msg := domain.NewMessage(room.RoomCode, domain.ParticipantAssistant, assistantSenderID, assistantSenderName, content)
	if _, err := uc.commitMessage(ctx, room, msg); err != nil {
		logger.Log.Error("assistant reply persist", zap.String("room", room.RoomCode), zap.Error(err))
	}
}

func (uc *HandoffUseCase) summarize(roomCode string) {
	ctx, cancel := context.WithTimeout(context.Background(), summarizeTimeout)
	defer cancel()
	window := uc.conversationWindow(ctx, roomCode)
	if err := uc.responder.Summarize(ctx, roomCode, window); err != nil {
		logger.Log.Error("handoff summary", zap.String("room", roomCode), zap.Error(err))
	}
}

func (uc *HandoffUseCase) conversationWindow(ctx context.Context, roomCode string) []domain.Message {
	msgs, err := uc.cache.Recent(ctx, roomCode)
	if err == nil && len(msgs) > 0 {
		return msgs
	}
	if err != nil {
		logger.Log.Warn("recent ring read", zap.String("room", roomCode), zap.Error(err))
	}
	msgs, err = uc.msgRepo.ListRecent(ctx, roomCode, recentWindow)
	if err != nil {
		logger.Log.Error("recent messages read", zap.String("room", roomCode), zap.Error(err))
		return nil
	}
	return msgs
}

func (uc *HandoffUseCase) invalidate(ctx context.Context, roomCode string) {
	if err := uc.cache.InvalidateSnapshot(ctx, roomCode); err != nil {
		logger.Log.Warn("snapshot invalidate", zap.String("room", roomCode), zap.Error(err))
	}
}

func (uc *HandoffUseCase) broadcastState(ctx context.Context, room *domain.Room) {
	if err := uc.broadcaster.Publish(ctx, room.RoomCode, domain.RoomEvent{
		Type:      domain.EventTypeRoomState,
		RoomState: room.StateInfo(),
		Version:   room.Version,
	}); err != nil {
		logger.Log.Error("state broadcast", zap.String("room", room.RoomCode), zap.Error(err))
	}
}

func accessDeniedByHolder(room *domain.Room) error {
	holderID := ""
	if room.AssignedOperatorID != nil {
		holderID = *room.AssignedOperatorID
	}
	return &domain.AccessDeniedError{HolderID: holderID, HolderName: room.OperatorName}
}
