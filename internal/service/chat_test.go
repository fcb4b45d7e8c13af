package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pet_chat/internal/domain"
	apperrors "pet_chat/pkg/errors"
	"pet_chat/pkg/logger"
)

type fakeRoomRepo struct {
	mu      sync.Mutex
	rooms   map[domain.ChatKey]*domain.ChatRoom
	members map[domain.RoomID]map[domain.UserID]struct{}
	nextID  domain.RoomID
	err     error
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:   make(map[domain.ChatKey]*domain.ChatRoom),
		members: make(map[domain.RoomID]map[domain.UserID]struct{}),
	}
}

func (f *fakeRoomRepo) FindOrCreate(_ context.Context, key domain.ChatKey) (*domain.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if room, ok := f.rooms[key]; ok {
		return room, nil
	}
	f.nextID++
	room := &domain.ChatRoom{ID: f.nextID, Key: key, CreatedAt: time.Now()}
	f.rooms[key] = room
	return room, nil
}

func (f *fakeRoomRepo) GetByKey(_ context.Context, key domain.ChatKey) (*domain.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[key]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return room, nil
}

func (f *fakeRoomRepo) AddMember(_ context.Context, roomID domain.RoomID, userID domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[roomID] == nil {
		f.members[roomID] = make(map[domain.UserID]struct{})
	}
	f.members[roomID][userID] = struct{}{}
	return nil
}

type fakeChatRepo struct {
	mu       sync.Mutex
	messages []*domain.ChatMessage
}

func (f *fakeChatRepo) CreateMessage(_ context.Context, m *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = int64(len(f.messages) + 1)
	m.SentAt = time.Unix(int64(len(f.messages)), 0)
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeChatRepo) GetRecent(_ context.Context, roomID domain.RoomID, limit int) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.HistoryEntry
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := f.messages[i]
		if m.RoomID != roomID {
			continue
		}
		out = append(out, domain.HistoryEntry{Text: m.Text, MediaURL: m.MediaURL, MediaType: m.MediaType, SentAt: m.SentAt})
	}
	return out, nil
}

func newTestChatService() (ChatService, *fakeRoomRepo, *fakeChatRepo) {
	rooms := newFakeRoomRepo()
	chats := &fakeChatRepo{}
	return NewChatService(rooms, chats, logger.NewNop()), rooms, chats
}

func TestChatService_FindOrCreateRoom_Idempotent(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestChatService()
	ctx := context.Background()

	first, err := svc.FindOrCreateRoom(ctx, "c1")
	req.NoError(err)
	second, err := svc.FindOrCreateRoom(ctx, "c1")
	req.NoError(err)

	req.Equal(first.ID, second.ID)
	req.Equal(domain.ChatKey("c1"), second.Key)
}

func TestChatService_FindOrCreateRoom_PlaceholderCreatesNewRoom(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestChatService()
	ctx := context.Background()

	a, err := svc.FindOrCreateRoom(ctx, "")
	req.NoError(err)
	b, err := svc.FindOrCreateRoom(ctx, "  ")
	req.NoError(err)

	req.NotEmpty(a.Key)
	req.NotEqual(a.ID, b.ID)
	req.NotEqual(a.Key, b.Key)
}

func TestChatService_AddRoomMember(t *testing.T) {
	req := require.New(t)
	svc, rooms, _ := newTestChatService()
	ctx := context.Background()

	req.NoError(svc.AddRoomMember(ctx, 1, 7))
	req.NoError(svc.AddRoomMember(ctx, 1, 7))
	req.Len(rooms.members[1], 1)

	// anonymous users are not linked
	req.NoError(svc.AddRoomMember(ctx, 1, 0))
	req.Len(rooms.members[1], 1)

	req.ErrorIs(svc.AddRoomMember(ctx, 0, 7), apperrors.ErrBadRequest)
}

func TestChatService_InsertMessages(t *testing.T) {
	req := require.New(t)
	svc, _, chats := newTestChatService()
	ctx := context.Background()

	req.NoError(svc.InsertTextMessage(ctx, 1, 2, "hi"))
	req.NoError(svc.InsertMediaMessage(ctx, 1, 2, "/img/1.png", "image"))
	req.Len(chats.messages, 2)

	req.False(chats.messages[0].IsMedia())
	req.Equal("hi", *chats.messages[0].Text)
	req.Nil(chats.messages[0].MediaURL)

	req.True(chats.messages[1].IsMedia())
	req.Nil(chats.messages[1].Text)
	req.Equal("image", *chats.messages[1].MediaType)
}

func TestChatService_InsertMessages_Rejected(t *testing.T) {
	svc, _, chats := newTestChatService()
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"missing room", func() error { return svc.InsertTextMessage(ctx, 0, 2, "hi") }},
		{"missing sender", func() error { return svc.InsertTextMessage(ctx, 1, 0, "hi") }},
		{"blank text", func() error { return svc.InsertTextMessage(ctx, 1, 2, "  ") }},
		{"missing media type", func() error { return svc.InsertMediaMessage(ctx, 1, 2, "/a.png", "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.True(t, errors.Is(err, apperrors.ErrBadRequest))
		})
	}
	require.Empty(t, chats.messages)
}

func TestChatService_GetHistory_OldestFirst(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestChatService()
	ctx := context.Background()

	room, err := svc.FindOrCreateRoom(ctx, "c1")
	req.NoError(err)
	for _, text := range []string{"one", "two", "three"} {
		req.NoError(svc.InsertTextMessage(ctx, room.ID, 1, text))
	}

	recent, err := svc.FetchRecentMessages(ctx, room.ID, 2)
	req.NoError(err)
	req.Len(recent, 2)
	req.Equal("three", *recent[0].Text)

	history, err := svc.GetHistory(ctx, "c1", 10)
	req.NoError(err)
	req.Len(history, 3)
	req.Equal("one", *history[0].Text)
	req.Equal("three", *history[2].Text)
}

func TestChatService_GetHistory_UnknownChat(t *testing.T) {
	svc, _, _ := newTestChatService()

	history, err := svc.GetHistory(context.Background(), "nope", 10)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, DefaultHistoryLimit, clampLimit(0))
	require.Equal(t, DefaultHistoryLimit, clampLimit(-3))
	require.Equal(t, 10, clampLimit(10))
	require.Equal(t, MaxHistoryLimit, clampLimit(1000))
}
