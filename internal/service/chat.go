package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"pet_chat/internal/domain"
	"pet_chat/internal/repository"
	apperrors "pet_chat/pkg/errors"
	"pet_chat/pkg/logger"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// ChatService is the narrow persistence surface the relay depends on.
type ChatService interface {
	// FindOrCreateRoom resolves a chat key to its durable room. An empty key
	// creates a brand-new room under a generated key.
	FindOrCreateRoom(ctx context.Context, key domain.ChatKey) (*domain.ChatRoom, error)
	AddRoomMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	InsertTextMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, text string) error
	InsertMediaMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, mediaURL, mediaType string) error
	// FetchRecentMessages returns up to limit entries, newest first.
	FetchRecentMessages(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.HistoryEntry, error)
	// GetHistory returns recent entries for a chat key, oldest first.
	GetHistory(ctx context.Context, key domain.ChatKey, limit int) ([]domain.HistoryEntry, error)
}

type chatService struct {
	roomRepo repository.RoomRepository
	chatRepo repository.ChatRepository
	log      logger.Logger
}

func NewChatService(roomRepo repository.RoomRepository, chatRepo repository.ChatRepository, log logger.Logger) ChatService {
	return &chatService{
		roomRepo: roomRepo,
		chatRepo: chatRepo,
		log:      log,
	}
}

func (s *chatService) FindOrCreateRoom(ctx context.Context, key domain.ChatKey) (*domain.ChatRoom, error) {
	key = domain.ChatKey(strings.TrimSpace(string(key)))
	if key == "" {
		key = domain.ChatKey(uuid.NewString())
		s.log.Debug("Creating room for placeholder chat id", "chat_id", key)
	}
	return s.roomRepo.FindOrCreate(ctx, key)
}

func (s *chatService) AddRoomMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	if roomID <= 0 {
		return fmt.Errorf("%w: room id required", apperrors.ErrBadRequest)
	}
	if !userID.Valid() {
		return nil
	}
	return s.roomRepo.AddMember(ctx, roomID, userID)
}

func (s *chatService) InsertTextMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, text string) error {
	if err := checkMessageRefs(roomID, senderID); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text required", apperrors.ErrBadRequest)
	}
	return s.chatRepo.CreateMessage(ctx, domain.NewTextMessage(roomID, senderID, text))
}

func (s *chatService) InsertMediaMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, mediaURL, mediaType string) error {
	if err := checkMessageRefs(roomID, senderID); err != nil {
		return err
	}
	if mediaURL == "" || mediaType == "" {
		return fmt.Errorf("%w: media url and type required", apperrors.ErrBadRequest)
	}
	return s.chatRepo.CreateMessage(ctx, domain.NewMediaMessage(roomID, senderID, mediaURL, mediaType))
}

func (s *chatService) FetchRecentMessages(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.HistoryEntry, error) {
	if roomID <= 0 {
		return []domain.HistoryEntry{}, nil
	}
	return s.chatRepo.GetRecent(ctx, roomID, clampLimit(limit))
}

func (s *chatService) GetHistory(ctx context.Context, key domain.ChatKey, limit int) ([]domain.HistoryEntry, error) {
	room, err := s.roomRepo.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrRoomNotFound) {
			return []domain.HistoryEntry{}, nil
		}
		return nil, err
	}

	entries, err := s.FetchRecentMessages(ctx, room.ID, limit)
	if err != nil {
		return nil, err
	}
	return lo.Reverse(entries), nil
}

func checkMessageRefs(roomID domain.RoomID, senderID domain.UserID) error {
	if roomID <= 0 {
		return fmt.Errorf("%w: room id required", apperrors.ErrBadRequest)
	}
	if !senderID.Valid() {
		return fmt.Errorf("%w: sender id required", apperrors.ErrBadRequest)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}
