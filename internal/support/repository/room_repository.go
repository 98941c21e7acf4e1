package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
	errprocess "github.com/MYCE-Refactoring/myce-backend-sub000/pkg/err"
)

// RoomRepository durable room store. The room row is the unit of mutual
// exclusion: assignment and state transitions are single conditional
// UPDATEs, never read-then-write pairs.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	FindByCode(ctx context.Context, roomCode string) (*domain.Room, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Room, error)
	ListActive(ctx context.Context) ([]domain.Room, error)

	// SaveMessageMeta record the latest message and advance the sender's
	// own read cursor under an optimistic version check.
	SaveMessageMeta(ctx context.Context, roomCode string, msg *domain.Message) (*domain.Room, error)
	// UpdateReadStatus advance one participant tag's cursor.
	UpdateReadStatus(ctx context.Context, roomCode string, tag domain.ParticipantType, messageID string) (*domain.Room, error)

	// UpdateState move the room along one transition edge. The from-state
	// predicate makes concurrent transitions lose cleanly.
	UpdateState(ctx context.Context, roomCode string, from, to domain.RoomState, markHandoff bool) (*domain.Room, error)
	// TryAssign exclusive operator assignment, valid only while the room
	// still sits in from; acquired is false for the idempotent re-assign
	// of the current holder.
	TryAssign(ctx context.Context, roomCode, operatorID, operatorName string, from domain.RoomState) (room *domain.Room, acquired bool, err error)
	// Release clear the assignment and return to the assistant. system
	// bypasses the holder check for owner- or system-initiated returns.
	Release(ctx context.Context, roomCode, operatorID string, system bool) (*domain.Room, error)
}

type roomRepository struct {
	db *pgxpool.Pool
}

// NewRoomRepository create a RoomRepository backed by Postgres
func NewRoomRepository(db *pgxpool.Pool) RoomRepository {
	return &roomRepository{db: db}
}

const roomColumns = `room_code, owner_id, owner_name, scope_id, state,
	assigned_operator_id, operator_name, last_operator_active_at,
	read_status, last_message_id, last_message_preview, last_message_at,
	is_active, handoff_requested_at, version, created_at`

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var (
		r       domain.Room
		encoded string
	)
	err := row.Scan(
		&r.RoomCode, &r.OwnerID, &r.OwnerName, &r.ScopeID, &r.State,
		&r.AssignedOperatorID, &r.OperatorName, &r.LastOperatorActiveAt,
		&encoded, &r.LastMessageID, &r.LastMessagePreview, &r.LastMessageAt,
		&r.IsActive, &r.HandoffRequestedAt, &r.Version, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.ReadStatus = domain.DecodeReadStatus(encoded)
	return &r, nil
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	// ON CONFLICT keeps "at most one active room per owner/scope" safe
	// under concurrent first contact.
	_, err := r.db.Exec(ctx, `
		INSERT INTO support_room
			(room_code, owner_id, owner_name, scope_id, state, read_status, is_active, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, 1, $7)
		ON CONFLICT (room_code) DO NOTHING`,
		room.RoomCode, room.OwnerID, room.OwnerName, room.ScopeID,
		room.State, room.ReadStatus.Encode(), room.CreatedAt,
	)
	return err
}

func (r *roomRepository) FindByCode(ctx context.Context, roomCode string) (*domain.Room, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM support_room WHERE room_code = $1 AND is_active`, roomCode)
	return scanRoom(row)
}

func (r *roomRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Room, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+roomColumns+` FROM support_room
		 WHERE owner_id = $1 AND is_active
		 ORDER BY last_message_at DESC NULLS LAST`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

func (r *roomRepository) ListActive(ctx context.Context) ([]domain.Room, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+roomColumns+` FROM support_room
		 WHERE is_active
		 ORDER BY last_message_at DESC NULLS LAST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

func collectRooms(rows pgx.Rows) ([]domain.Room, error) {
	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

const metaRetry = 3

func (r *roomRepository) SaveMessageMeta(ctx context.Context, roomCode string, msg *domain.Message) (*domain.Room, error) {
	// Version-checked read-modify-write; the read-status column is an
	// encoded blob so the merge happens in Go.
	for i := 0; i < metaRetry; i++ {
		room, err := r.FindByCode(ctx, roomCode)
		if err != nil {
			return nil, err
		}
		if room == nil {
			return nil, domain.ErrRoomNotFound
		}

		status := room.ReadStatus
		if msg.SenderType != domain.ParticipantSystem {
			// a sender has read up through their own message
			status = status.Update(msg.SenderType, msg.ID)
		}

		row := r.db.QueryRow(ctx, `
			UPDATE support_room
			SET last_message_id = $2, last_message_preview = $3, last_message_at = $4,
			    read_status = $5,
			    last_operator_active_at = CASE WHEN $7 THEN NOW() ELSE last_operator_active_at END,
			    version = version + 1
			WHERE room_code = $1 AND version = $6
			RETURNING `+roomColumns,
			roomCode, msg.ID, domain.Preview(msg.Content), msg.SentAt,
			status.Encode(), room.Version,
			msg.SenderType == domain.ParticipantOperator,
		)
		updated, err := scanRoom(row)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			return updated, nil
		}
		// version moved under us, reload and retry
	}
	return nil, errprocess.Set("room update contention: " + roomCode)
}

func (r *roomRepository) UpdateReadStatus(ctx context.Context, roomCode string, tag domain.ParticipantType, messageID string) (*domain.Room, error) {
	for i := 0; i < metaRetry; i++ {
		room, err := r.FindByCode(ctx, roomCode)
		if err != nil {
			return nil, err
		}
		if room == nil {
			return nil, domain.ErrRoomNotFound
		}

		row := r.db.QueryRow(ctx, `
			UPDATE support_room
			SET read_status = $2, version = version + 1
			WHERE room_code = $1 AND version = $3
			RETURNING `+roomColumns,
			roomCode, room.ReadStatus.Update(tag, messageID).Encode(), room.Version,
		)
		updated, err := scanRoom(row)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			return updated, nil
		}
	}
	return nil, errprocess.Set("room update contention: " + roomCode)
}

func (r *roomRepository) UpdateState(ctx context.Context, roomCode string, from, to domain.RoomState, markHandoff bool) (*domain.Room, error) {
	var handoffAt *time.Time
	if markHandoff {
		now := time.Now().UTC()
		handoffAt = &now
	}
	row := r.db.QueryRow(ctx, `
		UPDATE support_room
		SET state = $3, handoff_requested_at = $4, version = version + 1
		WHERE room_code = $1 AND state = $2 AND is_active
		RETURNING `+roomColumns,
		roomCode, from, to, handoffAt,
	)
	updated, err := scanRoom(row)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}

	// the predicate failed: report why
	room, err := r.FindByCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	return nil, &domain.InvalidTransitionError{From: room.State, Event: eventFor(from, to)}
}

func eventFor(from, to domain.RoomState) domain.TransitionEvent {
	switch {
	case to == domain.StateWaitingForOperator:
		return domain.EventRequestHandoff
	case from == domain.StateWaitingForOperator && to == domain.StateAssistantActive:
		return domain.EventCancelHandoff
	case to == domain.StateOperatorActive:
		return domain.EventAcceptHandoff
	}
	return domain.EventRelease
}

func (r *roomRepository) TryAssign(ctx context.Context, roomCode, operatorID, operatorName string, from domain.RoomState) (*domain.Room, bool, error) {
	// Single check-and-set: succeeds only while the room still sits in
	// from and is unassigned or already held by the same operator
	// (heartbeat refresh). The state predicate makes an accept that races
	// a cancel lose instead of assigning a room that left WAITING.
	row := r.db.QueryRow(ctx, `
		UPDATE support_room
		SET assigned_operator_id = $2, operator_name = $3, state = $4,
		    last_operator_active_at = NOW(), handoff_requested_at = NULL,
		    version = version + 1
		WHERE room_code = $1 AND is_active AND state = $5
		  AND (assigned_operator_id IS NULL OR assigned_operator_id = $2)
		-- the subquery runs on the statement snapshot, so it reports the
		-- pre-update holder: NULL means this call acquired the room
		RETURNING (SELECT s.assigned_operator_id IS NULL FROM support_room s WHERE s.room_code = $1), `+roomColumns,
		roomCode, operatorID, operatorName, domain.StateOperatorActive, from,
	)
	var (
		room        domain.Room
		encoded     string
		wasAcquired bool
	)
	err := row.Scan(
		&wasAcquired,
		&room.RoomCode, &room.OwnerID, &room.OwnerName, &room.ScopeID, &room.State,
		&room.AssignedOperatorID, &room.OperatorName, &room.LastOperatorActiveAt,
		&encoded, &room.LastMessageID, &room.LastMessagePreview, &room.LastMessageAt,
		&room.IsActive, &room.HandoffRequestedAt, &room.Version, &room.CreatedAt,
	)
	if err == nil {
		room.ReadStatus = domain.DecodeReadStatus(encoded)
		return &room, wasAcquired, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// the predicate failed: report why
	current, err := r.FindByCode(ctx, roomCode)
	if err != nil {
		return nil, false, err
	}
	if current == nil {
		return nil, false, domain.ErrRoomNotFound
	}
	if current.AssignedOperatorID != nil && *current.AssignedOperatorID != operatorID {
		return nil, false, &domain.AssignmentConflictError{
			HolderID: *current.AssignedOperatorID, HolderName: current.OperatorName}
	}
	// unassigned but no longer in from: a cancel or release moved the
	// room under the caller
	return nil, false, &domain.InvalidTransitionError{From: current.State, Event: assignEvent(from)}
}

func assignEvent(from domain.RoomState) domain.TransitionEvent {
	if from == domain.StateWaitingForOperator {
		return domain.EventAcceptHandoff
	}
	return domain.EventIntervene
}

func (r *roomRepository) Release(ctx context.Context, roomCode, operatorID string, system bool) (*domain.Room, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE support_room
		SET assigned_operator_id = NULL, operator_name = '', state = $4,
		    handoff_requested_at = NULL, version = version + 1
		WHERE room_code = $1 AND state = $3 AND is_active
		  AND (assigned_operator_id = $2 OR $5)
		RETURNING `+roomColumns,
		roomCode, operatorID, domain.StateOperatorActive, domain.StateAssistantActive, system,
	)
	updated, err := scanRoom(row)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}

	room, err := r.FindByCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	if room.State != domain.StateOperatorActive {
		return nil, &domain.InvalidTransitionError{From: room.State, Event: domain.EventRelease}
	}
	holderID := ""
	if room.AssignedOperatorID != nil {
		holderID = *room.AssignedOperatorID
	}
	return nil, &domain.AccessDeniedError{HolderID: holderID, HolderName: room.OperatorName}
}
