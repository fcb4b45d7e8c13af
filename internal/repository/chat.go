package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pet_chat/internal/domain"
	"pet_chat/pkg/logger"
)

type ChatRepository interface {
	// CreateMessage stores the message; sent_at is assigned by the database.
	CreateMessage(ctx context.Context, message *domain.ChatMessage) error
	// GetRecent returns up to limit messages, newest first.
	GetRecent(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.HistoryEntry, error)
}

type chatRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewChatRepository(db *pgxpool.Pool, log logger.Logger) ChatRepository {
	return &chatRepository{db: db, log: log}
}

func (r *chatRepository) CreateMessage(ctx context.Context, message *domain.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (room_id, sender_id, text, media_url, media_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, sent_at
	`

	err := r.db.QueryRow(ctx, query,
		int64(message.RoomID), int64(message.SenderID),
		message.Text, message.MediaURL, message.MediaType,
	).Scan(&message.ID, &message.SentAt)
	if err != nil {
		r.log.Error("Failed to create message", "error", err, "room_id", message.RoomID)
		return fmt.Errorf("create message: %w", err)
	}

	return nil
}

func (r *chatRepository) GetRecent(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.HistoryEntry, error) {
	query := `
		SELECT COALESCE(u.display_name, ''), m.text, m.media_url, m.media_type, m.sent_at
		FROM chat_messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, int64(roomID), limit)
	if err != nil {
		r.log.Error("Failed to get recent messages", "error", err, "room_id", roomID)
		return nil, fmt.Errorf("get recent messages: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.SenderName, &e.Text, &e.MediaURL, &e.MediaType, &e.SentAt); err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, fmt.Errorf("scan message: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		r.log.Error("Failed to iterate messages", "error", err)
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return entries, nil
}
