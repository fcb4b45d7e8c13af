package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pet_chat/internal/domain"
	apperrors "pet_chat/pkg/errors"
	"pet_chat/pkg/logger"
)

type RoomRepository interface {
	// FindOrCreate returns the room for key, inserting it if absent. Safe to
	// race: concurrent callers with the same key get the same row.
	FindOrCreate(ctx context.Context, key domain.ChatKey) (*domain.ChatRoom, error)
	GetByKey(ctx context.Context, key domain.ChatKey) (*domain.ChatRoom, error)
	// AddMember links a user to a room; an existing link is left untouched.
	AddMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

func (r *roomRepository) FindOrCreate(ctx context.Context, key domain.ChatKey) (*domain.ChatRoom, error) {
	query := `
		INSERT INTO chat_rooms (chat_key)
		VALUES ($1)
		ON CONFLICT (chat_key) DO UPDATE SET chat_key = EXCLUDED.chat_key
		RETURNING id, chat_key, created_at
	`

	var id int64
	var storedKey string
	room := &domain.ChatRoom{}
	err := r.db.QueryRow(ctx, query, string(key)).Scan(&id, &storedKey, &room.CreatedAt)
	if err != nil {
		r.log.Error("Failed to find or create room", "error", err, "chat_id", key)
		return nil, fmt.Errorf("find or create room: %w", err)
	}
	room.ID = domain.RoomID(id)
	room.Key = domain.ChatKey(storedKey)

	return room, nil
}

func (r *roomRepository) GetByKey(ctx context.Context, key domain.ChatKey) (*domain.ChatRoom, error) {
	query := `
		SELECT id, chat_key, created_at
		FROM chat_rooms
		WHERE chat_key = $1
	`

	var id int64
	var storedKey string
	room := &domain.ChatRoom{}
	err := r.db.QueryRow(ctx, query, string(key)).Scan(&id, &storedKey, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room by key", "error", err, "chat_id", key)
		return nil, fmt.Errorf("get room: %w", err)
	}
	room.ID = domain.RoomID(id)
	room.Key = domain.ChatKey(storedKey)

	return room, nil
}

func (r *roomRepository) AddMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	query := `
		INSERT INTO chat_room_members (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, int64(roomID), int64(userID)); err != nil {
		r.log.Error("Failed to add room member", "error", err, "room_id", roomID, "user_id", userID)
		return fmt.Errorf("add room member: %w", err)
	}

	return nil
}
