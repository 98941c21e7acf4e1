package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/logger"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "support-test-log")
	if err != nil {
		panic(err)
	}
	logger.Log = logger.Initialize("support_test", dir)
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type mockRoomRepo struct {
	mock.Mock
}

func (m *mockRoomRepo) Create(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *mockRoomRepo) FindByCode(ctx context.Context, roomCode string) (*domain.Room, error) {
	args := m.Called(ctx, roomCode)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *mockRoomRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Room, error) {
	args := m.Called(ctx, ownerID)
	rooms, _ := args.Get(0).([]domain.Room)
	return rooms, args.Error(1)
}

func (m *mockRoomRepo) ListActive(ctx context.Context) ([]domain.Room, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]domain.Room)
	return rooms, args.Error(1)
}

func (m *mockRoomRepo) SaveMessageMeta(ctx context.Context, roomCode string, msg *domain.Message) (*domain.Room, error) {
	args := m.Called(ctx, roomCode, msg)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *mockRoomRepo) UpdateReadStatus(ctx context.Context, roomCode string, tag domain.ParticipantType, messageID string) (*domain.Room, error) {
	args := m.Called(ctx, roomCode, tag, messageID)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *mockRoomRepo) UpdateState(ctx context.Context, roomCode string, from, to domain.RoomState, markHandoff bool) (*domain.Room, error) {
	args := m.Called(ctx, roomCode, from, to, markHandoff)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *mockRoomRepo) TryAssign(ctx context.Context, roomCode, operatorID, operatorName string, from domain.RoomState) (*domain.Room, bool, error) {
	args := m.Called(ctx, roomCode, operatorID, operatorName, from)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Bool(1), args.Error(2)
}

func (m *mockRoomRepo) Release(ctx context.Context, roomCode, operatorID string, system bool) (*domain.Room, error) {
	args := m.Called(ctx, roomCode, operatorID, system)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockMessageRepo) ListRecent(ctx context.Context, roomCode string, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, roomCode, limit)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}

func (m *mockMessageRepo) ListAfter(ctx context.Context, roomCode, afterID string, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, roomCode, afterID, limit)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}

func (m *mockMessageRepo) CountBySenderTypes(ctx context.Context, roomCode string, types []domain.ParticipantType, afterID string) (int64, error) {
	args := m.Called(ctx, roomCode, types, afterID)
	return args.Get(0).(int64), args.Error(1)
}

type mockRoomCache struct {
	mock.Mock
}

func (m *mockRoomCache) SetSnapshot(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *mockRoomCache) GetSnapshot(ctx context.Context, roomCode string) (*domain.Room, error) {
	args := m.Called(ctx, roomCode)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *mockRoomCache) InvalidateSnapshot(ctx context.Context, roomCode string) error {
	args := m.Called(ctx, roomCode)
	return args.Error(0)
}

func (m *mockRoomCache) PushRecent(ctx context.Context, roomCode string, msg *domain.Message) error {
	args := m.Called(ctx, roomCode, msg)
	return args.Error(0)
}

func (m *mockRoomCache) Recent(ctx context.Context, roomCode string) ([]domain.Message, error) {
	args := m.Called(ctx, roomCode)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}

func (m *mockRoomCache) IncrUnread(ctx context.Context, roomCode, viewerID string) error {
	args := m.Called(ctx, roomCode, viewerID)
	return args.Error(0)
}

func (m *mockRoomCache) UnreadCount(ctx context.Context, roomCode, viewerID string) (int64, bool, error) {
	args := m.Called(ctx, roomCode, viewerID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockRoomCache) SetUnread(ctx context.Context, roomCode, viewerID string, n int64) error {
	args := m.Called(ctx, roomCode, viewerID, n)
	return args.Error(0)
}

func (m *mockRoomCache) SyncUnread(ctx context.Context, roomCode, viewerID string, n int64) error {
	args := m.Called(ctx, roomCode, viewerID, n)
	return args.Error(0)
}

func (m *mockRoomCache) DropUnread(ctx context.Context, roomCode, viewerID string) error {
	args := m.Called(ctx, roomCode, viewerID)
	return args.Error(0)
}

func (m *mockRoomCache) BadgeTotal(ctx context.Context, viewerID string) (int64, bool, error) {
	args := m.Called(ctx, viewerID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

// newMissCache cache mock where every read misses and every write succeeds
func newMissCache() *mockRoomCache {
	c := new(mockRoomCache)
	c.On("GetSnapshot", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	c.On("SetSnapshot", mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("InvalidateSnapshot", mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("PushRecent", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("Recent", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	c.On("IncrUnread", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("UnreadCount", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), false, nil).Maybe()
	c.On("SetUnread", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("SyncUnread", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("DropUnread", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("BadgeTotal", mock.Anything, mock.Anything).Return(int64(0), false, nil).Maybe()
	return c
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Publish(ctx context.Context, roomCode string, event domain.RoomEvent) error {
	args := m.Called(ctx, roomCode, event)
	return args.Error(0)
}

func (m *mockBroadcaster) Subscribe(ctx context.Context, roomCode string, handler func(event domain.RoomEvent)) error {
	args := m.Called(ctx, roomCode, handler)
	return args.Error(0)
}

type mockResponder struct {
	mock.Mock
}

func (m *mockResponder) Generate(ctx context.Context, roomCode string, window []domain.Message) (string, error) {
	args := m.Called(ctx, roomCode, window)
	return args.String(0), args.Error(1)
}

func (m *mockResponder) Summarize(ctx context.Context, roomCode string, window []domain.Message) error {
	args := m.Called(ctx, roomCode, window)
	return args.Error(0)
}
