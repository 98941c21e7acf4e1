package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/repository"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/logger"
)

// RoomUseCase room listing, lazy creation and read tracking
type RoomUseCase struct {
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
	cache    repository.RoomCache
}

// NewRoomUseCase init room use case
func NewRoomUseCase(roomRepo repository.RoomRepository, msgRepo repository.MessageRepository, cache repository.RoomCache) *RoomUseCase {
	return &RoomUseCase{roomRepo: roomRepo, msgRepo: msgRepo, cache: cache}
}

// RoomSummary room snapshot plus the viewer's unread count
type RoomSummary struct {
	Room        domain.Room `json:"room"`
	UnreadCount int64       `json:"unread_count"`
}

// JoinRoom open a room, creating it on the owner's first contact. Returns
// the room and a recent-message backfill.
func (uc *RoomUseCase) JoinRoom(ctx context.Context, roomCode, viewerID, viewerName string, role domain.ParticipantType) (*domain.Room, []domain.Message, error) {
	ownerID, scopeID, err := domain.ParseRoomCode(roomCode)
	if err != nil {
		return nil, nil, err
	}

	room, err := uc.roomRepo.FindByCode(ctx, roomCode)
	if err != nil {
		return nil, nil, err
	}
	if room == nil {
		// only the owner's first contact creates a room
		if role != domain.ParticipantOwner || ownerID != viewerID {
			return nil, nil, domain.ErrRoomNotFound
		}
		fresh := domain.NewRoom(roomCode, viewerID, viewerName, scopeID)
		if err := uc.roomRepo.Create(ctx, fresh); err != nil {
			return nil, nil, err
		}
		// re-read: a concurrent first contact may have won the insert
		room, err = uc.roomRepo.FindByCode(ctx, roomCode)
		if err != nil {
			return nil, nil, err
		}
		if room == nil {
			return nil, nil, domain.ErrRoomNotFound
		}
	} else if role == domain.ParticipantOwner && room.OwnerID != viewerID {
		return nil, nil, &domain.AccessDeniedError{}
	}

	if err := uc.cache.SetSnapshot(ctx, room); err != nil {
		logger.Log.Warn("snapshot mirror", zap.String("room", roomCode), zap.Error(err))
	}
	return room, uc.recentMessages(ctx, roomCode), nil
}

// ListRooms rooms visible to the viewer, newest activity first, each with
// the viewer's unread count
func (uc *RoomUseCase) ListRooms(ctx context.Context, viewerID string, role domain.ParticipantType) ([]RoomSummary, error) {
	var (
		rooms []domain.Room
		err   error
	)
	if role == domain.ParticipantOwner {
		rooms, err = uc.roomRepo.ListByOwner(ctx, viewerID)
	} else {
		// operators see the whole active queue
		rooms, err = uc.roomRepo.ListActive(ctx)
	}
	if err != nil {
		return nil, err
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for i := range rooms {
		n, err := uc.unreadFor(ctx, &rooms[i], viewerID, role)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, RoomSummary{Room: rooms[i], UnreadCount: n})
	}
	return summaries, nil
}

// MarkRead advance the viewer's read cursor. Older or equal ids are
// no-ops, so repeated calls are idempotent.
func (uc *RoomUseCase) MarkRead(ctx context.Context, roomCode, viewerID string, role domain.ParticipantType, lastReadID string) error {
	room, err := uc.roomRepo.FindByCode(ctx, roomCode)
	if err != nil {
		return err
	}
	if room == nil {
		return domain.ErrRoomNotFound
	}

	tag := domain.ParticipantOperator
	if role == domain.ParticipantOwner {
		if room.OwnerID != viewerID {
			return &domain.AccessDeniedError{}
		}
		tag = domain.ParticipantOwner
	}

	updated, err := uc.roomRepo.UpdateReadStatus(ctx, roomCode, tag, lastReadID)
	if err != nil {
		return err
	}

	// the new cursor may still trail the newest message, so recount from
	// the durable store instead of zeroing the cached counter
	n, err := uc.msgRepo.CountBySenderTypes(ctx, roomCode,
		domain.TargetSenderTypes(role), domain.ViewerLastRead(updated, role))
	if err != nil {
		logger.Log.Warn("unread recount", zap.String("room", roomCode), zap.Error(err))
		if err := uc.cache.DropUnread(ctx, roomCode, viewerID); err != nil {
			logger.Log.Warn("unread drop", zap.String("room", roomCode), zap.Error(err))
		}
	} else if err := uc.cache.SyncUnread(ctx, roomCode, viewerID, n); err != nil {
		logger.Log.Warn("unread sync", zap.String("room", roomCode), zap.Error(err))
	}
	if err := uc.cache.SetSnapshot(ctx, updated); err != nil {
		logger.Log.Warn("snapshot mirror", zap.String("room", roomCode), zap.Error(err))
	}
	return nil
}

// GetUnreadCount the viewer's unread count for one room; cached counter
// when present, recomputed from the durable stores otherwise
func (uc *RoomUseCase) GetUnreadCount(ctx context.Context, roomCode, viewerID string, role domain.ParticipantType) (int64, error) {
	room, err := uc.roomRepo.FindByCode(ctx, roomCode)
	if err != nil {
		return 0, err
	}
	if room == nil {
		return 0, domain.ErrRoomNotFound
	}
	return uc.unreadFor(ctx, room, viewerID, role)
}

// BadgeTotal aggregate unread across the viewer's rooms; cached when the
// badge counter is alive, otherwise summed from durable data
func (uc *RoomUseCase) BadgeTotal(ctx context.Context, viewerID string, role domain.ParticipantType) (int64, error) {
	if n, ok, err := uc.cache.BadgeTotal(ctx, viewerID); err == nil && ok {
		return n, nil
	} else if err != nil {
		logger.Log.Warn("badge cache read", zap.String("viewer", viewerID), zap.Error(err))
	}

	summaries, err := uc.ListRooms(ctx, viewerID, role)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range summaries {
		total += s.UnreadCount
	}
	return total, nil
}

func (uc *RoomUseCase) unreadFor(ctx context.Context, room *domain.Room, viewerID string, role domain.ParticipantType) (int64, error) {
	if n, ok, err := uc.cache.UnreadCount(ctx, room.RoomCode, viewerID); err == nil && ok {
		return n, nil
	} else if err != nil {
		logger.Log.Warn("unread cache read", zap.String("room", room.RoomCode), zap.Error(err))
	}

	n, err := uc.msgRepo.CountBySenderTypes(ctx, room.RoomCode,
		domain.TargetSenderTypes(role), domain.ViewerLastRead(room, role))
	if err != nil {
		return 0, err
	}
	if err := uc.cache.SetUnread(ctx, room.RoomCode, viewerID, n); err != nil {
		logger.Log.Warn("unread cache fill", zap.String("room", room.RoomCode), zap.Error(err))
	}
	return n, nil
}

func (uc *RoomUseCase) recentMessages(ctx context.Context, roomCode string) []domain.Message {
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
