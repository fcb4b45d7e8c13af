package handler

import (
	"context"
	"sync"

	"pet_chat/internal/domain"
)

type storedText struct {
	roomID domain.RoomID
	sender domain.UserID
	text   string
}

// fakeChatService backs both the REST handlers and the relay in tests.
type fakeChatService struct {
	mu        sync.Mutex
	rooms     map[domain.ChatKey]domain.RoomID
	history   map[domain.ChatKey][]domain.HistoryEntry
	texts     []storedText
	lastLimit int
	err       error
}

func newFakeChatService() *fakeChatService {
	return &fakeChatService{
		rooms:   make(map[domain.ChatKey]domain.RoomID),
		history: make(map[domain.ChatKey][]domain.HistoryEntry),
	}
}

func (f *fakeChatService) FindOrCreateRoom(_ context.Context, key domain.ChatKey) (*domain.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.rooms[key]
	if !ok {
		id = domain.RoomID(len(f.rooms) + 1)
		f.rooms[key] = id
	}
	return &domain.ChatRoom{ID: id, Key: key}, nil
}

func (f *fakeChatService) AddRoomMember(context.Context, domain.RoomID, domain.UserID) error {
	return nil
}

func (f *fakeChatService) InsertTextMessage(_ context.Context, roomID domain.RoomID, senderID domain.UserID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, storedText{roomID: roomID, sender: senderID, text: text})
	return nil
}

func (f *fakeChatService) InsertMediaMessage(context.Context, domain.RoomID, domain.UserID, string, string) error {
	return nil
}

func (f *fakeChatService) FetchRecentMessages(context.Context, domain.RoomID, int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeChatService) GetHistory(_ context.Context, key domain.ChatKey, limit int) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.history[key], nil
}

func (f *fakeChatService) storedTexts() []storedText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storedText(nil), f.texts...)
}
