package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
)

func assistantRoom() *domain.Room {
	return domain.NewRoom(domain.GeneralRoomCode("member-1"), "member-1", "김민지", nil)
}

func waitingRoom() *domain.Room {
	room := assistantRoom()
	room.State = domain.StateWaitingForOperator
	now := time.Now().UTC()
	room.HandoffRequestedAt = &now
	return room
}

func operatorRoom(operatorID, operatorName string) *domain.Room {
	room := assistantRoom()
	room.State = domain.StateOperatorActive
	room.AssignedOperatorID = &operatorID
	room.OperatorName = operatorName
	return room
}

func TestSendMessage_OwnerGetsAssistantReply(t *testing.T) {
	ctx := context.Background()
	room := assistantRoom()

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	responder := new(mockResponder)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, responder)

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("SaveMessageMeta", ctx, room.RoomCode, mock.Anything).Return(room, nil)

	var inserted []*domain.Message
	msgRepo.On("Insert", ctx, mock.Anything).Run(func(args mock.Arguments) {
		inserted = append(inserted, args.Get(1).(*domain.Message))
	}).Return(nil)
	msgRepo.On("ListRecent", ctx, room.RoomCode, int64(recentWindow)).Return([]domain.Message{}, nil)

	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Return(nil)
	responder.On("Generate", ctx, room.RoomCode, mock.Anything).Return("환불은 주문 내역에서 신청하실 수 있습니다.", nil)

	msg, err := uc.SendMessage(ctx, room.RoomCode, "member-1", "김민지", domain.ParticipantOwner, "환불은 어떻게 하나요?")
	assert.NoError(t, err)
	assert.Equal(t, domain.ParticipantOwner, msg.SenderType)
	assert.Equal(t, "환불은 어떻게 하나요?", msg.Content)

	// the owner's message and the automated reply, in commit order
	if assert.Len(t, inserted, 2) {
		assert.Equal(t, domain.ParticipantAssistant, inserted[1].SenderType)
		assert.Equal(t, "환불은 주문 내역에서 신청하실 수 있습니다.", inserted[1].Content)
		assert.True(t, inserted[1].ID > inserted[0].ID)
	}
	responder.AssertExpectations(t)
}

func TestSendMessage_ResponderFailureFallsBackToApology(t *testing.T) {
	ctx := context.Background()
	room := assistantRoom()

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	responder := new(mockResponder)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, responder)

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("SaveMessageMeta", ctx, room.RoomCode, mock.Anything).Return(room, nil)

	var inserted []*domain.Message
	msgRepo.On("Insert", ctx, mock.Anything).Run(func(args mock.Arguments) {
		inserted = append(inserted, args.Get(1).(*domain.Message))
	}).Return(nil)
	msgRepo.On("ListRecent", ctx, room.RoomCode, int64(recentWindow)).Return([]domain.Message{}, nil)

	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Return(nil)
	responder.On("Generate", ctx, room.RoomCode, mock.Anything).Return("", errors.New("generation service down"))

	// the owner's send must still succeed
	_, err := uc.SendMessage(ctx, room.RoomCode, "member-1", "김민지", domain.ParticipantOwner, "안녕하세요")
	assert.NoError(t, err)
	if assert.Len(t, inserted, 2) {
		assert.Equal(t, assistantApology, inserted[1].Content)
	}
}

func TestSendMessage_OperatorMustHoldTheRoom(t *testing.T) {
	ctx := context.Background()
	room := operatorRoom("op-1", "이상담")

	roomRepo := new(mockRoomRepo)
	cache := newMissCache()
	uc := NewHandoffUseCase(roomRepo, new(mockMessageRepo), cache, new(mockBroadcaster), new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)

	_, err := uc.SendMessage(ctx, room.RoomCode, "op-2", "박상담", domain.ParticipantOperator, "제가 도와드리겠습니다")
	var denied *domain.AccessDeniedError
	if assert.ErrorAs(t, err, &denied) {
		assert.Equal(t, "op-1", denied.HolderID)
		assert.Equal(t, "이상담", denied.HolderName)
	}
}

func TestSendMessage_OperatorCannotPostWithoutTakingOver(t *testing.T) {
	ctx := context.Background()
	room := assistantRoom()

	roomRepo := new(mockRoomRepo)
	cache := newMissCache()
	uc := NewHandoffUseCase(roomRepo, new(mockMessageRepo), cache, new(mockBroadcaster), new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)

	_, err := uc.SendMessage(ctx, room.RoomCode, "op-1", "이상담", domain.ParticipantOperator, "안녕하세요")
	var invalid *domain.InvalidTransitionError
	if assert.ErrorAs(t, err, &invalid) {
		assert.Equal(t, domain.StateAssistantActive, invalid.From)
		assert.NotEmpty(t, invalid.Hint)
	}
}

func TestSendMessage_OwnerIdentityChecked(t *testing.T) {
	ctx := context.Background()
	room := assistantRoom()

	roomRepo := new(mockRoomRepo)
	cache := newMissCache()
	uc := NewHandoffUseCase(roomRepo, new(mockMessageRepo), cache, new(mockBroadcaster), new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)

	_, err := uc.SendMessage(ctx, room.RoomCode, "member-2", "다른회원", domain.ParticipantOwner, "안녕하세요")
	var denied *domain.AccessDeniedError
	assert.ErrorAs(t, err, &denied)
}

func TestRequestHandoff(t *testing.T) {
	ctx := context.Background()
	room := assistantRoom()
	updated := waitingRoom()

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	responder := new(mockResponder)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, responder)

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("UpdateState", ctx, room.RoomCode,
		domain.StateAssistantActive, domain.StateWaitingForOperator, true).Return(updated, nil)
	roomRepo.On("SaveMessageMeta", ctx, room.RoomCode, mock.Anything).Return(updated, nil)
	msgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	bc.On("Publish", mock.Anything, room.RoomCode, mock.Anything).Return(nil)

	// summary runs on its own goroutine, tolerate any timing
	msgRepo.On("ListRecent", mock.Anything, room.RoomCode, int64(recentWindow)).Return(nil, nil).Maybe()
	responder.On("Summarize", mock.Anything, room.RoomCode, mock.Anything).Return(nil).Maybe()

	sysMsg, err := uc.RequestHandoff(ctx, room.RoomCode, "member-1")
	assert.NoError(t, err)
	assert.Equal(t, domain.ParticipantSystem, sysMsg.SenderType)
	assert.Equal(t, "상담원 연결을 요청했습니다.", sysMsg.Content)
	roomRepo.AssertExpectations(t)
	cache.AssertCalled(t, "InvalidateSnapshot", ctx, room.RoomCode)
}

func TestRequestHandoff_OnlyFromAssistantState(t *testing.T) {
	ctx := context.Background()
	room := waitingRoom()

	roomRepo := new(mockRoomRepo)
	cache := newMissCache()
	uc := NewHandoffUseCase(roomRepo, new(mockMessageRepo), cache, new(mockBroadcaster), new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)

	_, err := uc.RequestHandoff(ctx, room.RoomCode, "member-1")
	var invalid *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
	roomRepo.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelHandoff(t *testing.T) {
	ctx := context.Background()
	room := waitingRoom()
	updated := assistantRoom()

	roomRepo := new(mockRoomRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	uc := NewHandoffUseCase(roomRepo, new(mockMessageRepo), cache, bc, new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("UpdateState", ctx, room.RoomCode,
		domain.StateWaitingForOperator, domain.StateAssistantActive, false).Return(updated, nil)
	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Return(nil)

	assert.NoError(t, uc.CancelHandoff(ctx, room.RoomCode, "member-1"))
	cache.AssertCalled(t, "InvalidateSnapshot", ctx, room.RoomCode)
}

func TestAcceptHandoff_WritesMarkerOnce(t *testing.T) {
	ctx := context.Background()
	room := waitingRoom()
	assigned := operatorRoom("op-1", "이상담")

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("TryAssign", ctx, room.RoomCode, "op-1", "이상담",
		domain.StateWaitingForOperator).Return(assigned, true, nil)
	roomRepo.On("SaveMessageMeta", ctx, room.RoomCode, mock.Anything).Return(assigned, nil)

	var inserted []*domain.Message
	msgRepo.On("Insert", ctx, mock.Anything).Run(func(args mock.Arguments) {
		inserted = append(inserted, args.Get(1).(*domain.Message))
	}).Return(nil)
	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Return(nil)

	got, err := uc.AcceptHandoff(ctx, room.RoomCode, "op-1", "이상담")
	assert.NoError(t, err)
	assert.Equal(t, domain.StateOperatorActive, got.State)
	if assert.Len(t, inserted, 1) {
		assert.Equal(t, domain.ParticipantSystem, inserted[0].SenderType)
		assert.Equal(t, "상담원 이상담 님이 연결되었습니다.", inserted[0].Content)
	}
}

func TestAcceptHandoff_LoserIsToldTheWinner(t *testing.T) {
	ctx := context.Background()
	room := waitingRoom()

	roomRepo := new(mockRoomRepo)
	cache := newMissCache()
	uc := NewHandoffUseCase(roomRepo, new(mockMessageRepo), cache, new(mockBroadcaster), new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("TryAssign", ctx, room.RoomCode, "op-2", "박상담", domain.StateWaitingForOperator).
		Return(nil, false, &domain.AssignmentConflictError{HolderID: "op-1", HolderName: "이상담"})

	_, err := uc.AcceptHandoff(ctx, room.RoomCode, "op-2", "박상담")
	var conflict *domain.AssignmentConflictError
	if assert.ErrorAs(t, err, &conflict) {
		assert.Equal(t, "이상담", conflict.HolderName)
	}
}

func TestAcceptHandoff_HolderHeartbeat(t *testing.T) {
	ctx := context.Background()
	room := operatorRoom("op-1", "이상담")

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("TryAssign", ctx, room.RoomCode, "op-1", "이상담",
		domain.StateOperatorActive).Return(room, false, nil)
	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Return(nil)

	got, err := uc.AcceptHandoff(ctx, room.RoomCode, "op-1", "이상담")
	assert.NoError(t, err)
	assert.True(t, got.AssignedTo("op-1"))
	// refresh only: no second hand-off marker
	msgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestAcceptHandoff_CancelledUnderneathLoses(t *testing.T) {
	// the room was still waiting at the pre-read, but the owner's cancel
	// commits first: the state predicate makes the assignment fail
	// instead of landing on an assistant-served room, and no connect
	// marker is written
	ctx := context.Background()
	room := waitingRoom()

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, new(mockBroadcaster), new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("TryAssign", ctx, room.RoomCode, "op-1", "이상담", domain.StateWaitingForOperator).
		Return(nil, false, &domain.InvalidTransitionError{
			From: domain.StateAssistantActive, Event: domain.EventAcceptHandoff})

	_, err := uc.AcceptHandoff(ctx, room.RoomCode, "op-1", "이상담")
	var invalid *domain.InvalidTransitionError
	if assert.ErrorAs(t, err, &invalid) {
		assert.Equal(t, domain.StateAssistantActive, invalid.From)
	}
	msgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestAcceptHandoff_AssistantRoomNeedsIntervene(t *testing.T) {
	ctx := context.Background()
	room := assistantRoom()

	roomRepo := new(mockRoomRepo)
	cache := newMissCache()
	uc := NewHandoffUseCase(roomRepo, new(mockMessageRepo), cache, new(mockBroadcaster), new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)

	_, err := uc.AcceptHandoff(ctx, room.RoomCode, "op-1", "이상담")
	var invalid *domain.InvalidTransitionError
	if assert.ErrorAs(t, err, &invalid) {
		assert.NotEmpty(t, invalid.Hint)
	}
}

func TestProactiveIntervene(t *testing.T) {
	ctx := context.Background()
	room := assistantRoom()
	assigned := operatorRoom("op-1", "이상담")

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("TryAssign", ctx, room.RoomCode, "op-1", "이상담",
		domain.StateAssistantActive).Return(assigned, true, nil)
	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Return(nil)

	got, err := uc.ProactiveIntervene(ctx, room.RoomCode, "op-1", "이상담")
	assert.NoError(t, err)
	assert.Equal(t, domain.StateOperatorActive, got.State)
	// the owner never queued, so no "operator connected" marker
	msgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestRequestAssistantReturn_OwnerForcesRelease(t *testing.T) {
	ctx := context.Background()
	room := operatorRoom("op-1", "이상담")
	released := assistantRoom()

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("Release", ctx, room.RoomCode, "member-1", true).Return(released, nil)
	roomRepo.On("SaveMessageMeta", ctx, room.RoomCode, mock.Anything).Return(released, nil)

	var inserted []*domain.Message
	msgRepo.On("Insert", ctx, mock.Anything).Run(func(args mock.Arguments) {
		inserted = append(inserted, args.Get(1).(*domain.Message))
	}).Return(nil)
	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Return(nil)

	assert.NoError(t, uc.RequestAssistantReturn(ctx, room.RoomCode, "member-1", domain.ParticipantOwner))
	if assert.Len(t, inserted, 1) {
		assert.Equal(t, "대화가 자동 응답으로 전환되었습니다.", inserted[0].Content)
	}
	roomRepo.AssertExpectations(t)
}

func TestRequestAssistantReturn_OperatorReleasesOwnRoom(t *testing.T) {
	ctx := context.Background()
	room := operatorRoom("op-1", "이상담")
	released := assistantRoom()

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("Release", ctx, room.RoomCode, "op-1", false).Return(released, nil)
	roomRepo.On("SaveMessageMeta", ctx, room.RoomCode, mock.Anything).Return(released, nil)
	msgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Return(nil)

	assert.NoError(t, uc.RequestAssistantReturn(ctx, room.RoomCode, "op-1", domain.ParticipantOperator))
	roomRepo.AssertExpectations(t)
}

func TestSendMessage_EventCarriesCommittedVersion(t *testing.T) {
	// publishes from concurrent senders are not serialized, so the event
	// carries the room version the durable write committed and
	// subscribers order by it
	ctx := context.Background()
	room := operatorRoom("op-1", "이상담")
	updated := operatorRoom("op-1", "이상담")
	updated.Version = 7

	roomRepo := new(mockRoomRepo)
	msgRepo := new(mockMessageRepo)
	cache := newMissCache()
	bc := new(mockBroadcaster)
	uc := NewHandoffUseCase(roomRepo, msgRepo, cache, bc, new(mockResponder))

	roomRepo.On("FindByCode", ctx, room.RoomCode).Return(room, nil)
	roomRepo.On("SaveMessageMeta", ctx, room.RoomCode, mock.Anything).Return(updated, nil)
	msgRepo.On("Insert", ctx, mock.Anything).Return(nil)

	var published []domain.RoomEvent
	bc.On("Publish", ctx, room.RoomCode, mock.Anything).Run(func(args mock.Arguments) {
		published = append(published, args.Get(2).(domain.RoomEvent))
	}).Return(nil)

	_, err := uc.SendMessage(ctx, room.RoomCode, "op-1", "이상담", domain.ParticipantOperator, "확인해 드리겠습니다")
	assert.NoError(t, err)
	if assert.Len(t, published, 1) {
		assert.Equal(t, domain.EventTypeMessage, published[0].Type)
		assert.Equal(t, int64(7), published[0].Version)
	}
}

func TestSendMessage_RoomMissing(t *testing.T) {
	ctx := context.Background()

	roomRepo := new(mockRoomRepo)
	cache := newMissCache()
	uc := NewHandoffUseCase(roomRepo, new(mockMessageRepo), cache, new(mockBroadcaster), new(mockResponder))

	roomRepo.On("FindByCode", ctx, "support:ghost").Return(nil, nil)

	_, err := uc.SendMessage(ctx, "support:ghost", "ghost", "유령", domain.ParticipantOwner, "계세요?")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
