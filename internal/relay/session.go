package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"pet_chat/internal/domain"
	"pet_chat/internal/metrics"
	"pet_chat/pkg/logger"
)

const (
	opFindOrCreateRoom = "find_or_create_room"
	opAddRoomMember    = "add_room_member"
	opInsertMessage    = "insert_message"
	opInsertMedia      = "insert_media_message"
	opFetchHistory     = "fetch_history"
	opQueueFull        = "queue_full"
)

type persistJob struct {
	key       domain.ChatKey
	roomID    domain.RoomID
	sender    domain.UserID
	text      string
	mediaURL  string
	mediaType string
	media     bool
}

// Session runs the protocol for one connection. Handle must be called from a
// single goroutine so events are processed in the order they were read.
type Session struct {
	id       domain.ConnectionID
	relay    *Relay
	authUser domain.UserID
	log      logger.Logger

	mu      sync.Mutex
	chatKey domain.ChatKey
	roomID  domain.RoomID
	closed  bool
	jobs    chan persistJob

	closeOnce sync.Once
}

func (s *Session) ID() domain.ConnectionID {
	return s.id
}

// Handle decodes one inbound frame and applies it. Malformed frames and
// protocol violations are dropped without a reply.
func (s *Session) Handle(ctx context.Context, raw []byte) {
	if s.isClosed() {
		return
	}

	evt, err := domain.DecodeClientEvent(raw)
	if err != nil {
		metrics.InvalidEventsTotal.Inc()
		s.log.Debug("Dropping invalid event", "error", err)
		return
	}
	metrics.EventsTotal.WithLabelValues(evt.EventName()).Inc()

	switch e := evt.(type) {
	case domain.EnterRoom:
		s.enterRoom(ctx, e)
	case domain.SendMessage:
		s.sendMessage(e)
	case domain.SendMedia:
		s.sendMedia(e)
	case domain.Activity:
		s.activity(e)
	}
}

// Close stops the session and removes the connection from presence. Writes
// already queued are still flushed to the gateway.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.jobs)
		s.mu.Unlock()

		s.relay.Disconnect(s.id)
	})
}

func (s *Session) enterRoom(ctx context.Context, e domain.EnterRoom) {
	r := s.relay
	userID, ok := s.resolveUser(e.UserID)
	if !ok {
		s.log.Warn("Dropping enterRoom for foreign user", "user_id", e.UserID)
		return
	}

	prev, _ := r.registry.Get(s.id)
	moved := prev.Joined() && prev.Room != e.Room
	if moved {
		r.registry.Leave(s.id)
		r.broadcaster.ToRoom(prev.Room, domain.NewNoticeEvent(fmt.Sprintf("%s has left the room", prev.Name), r.now()))
	}

	key, roomID := s.bindRoom(ctx, e.ChatID, userID)

	if _, ok := r.registry.Register(s.id, e.Name, e.Room, userID); !ok {
		s.log.Debug("Connection gone before join completed", "room", e.Room)
		return
	}
	s.log.Info("Joined room", "room", e.Room, "chat_id", key, "room_id", roomID)

	now := r.now()
	r.broadcaster.ToOne(s.id, domain.NewJoinedRoomEvent(e.Room, key))
	r.broadcaster.ToOne(s.id, domain.NewNoticeEvent(fmt.Sprintf("You have joined the %s room", e.Room), now))

	if moved {
		r.broadcaster.ToRoom(prev.Room, domain.NewUserListEvent(r.registry.MembersOf(prev.Room)))
	}
	if prev.Room != e.Room {
		r.broadcaster.ToRoomExcept(e.Room, s.id, domain.NewNoticeEvent(fmt.Sprintf("%s has joined the room", e.Name), now))
	}
	r.broadcaster.ToRoom(e.Room, domain.NewUserListEvent(r.registry.MembersOf(e.Room)))
	r.broadcaster.ToAll(domain.NewRoomListEvent(r.registry.AllRooms()))

	r.broadcaster.ToOne(s.id, domain.NewHistoryEvent(s.history(ctx, roomID)))
}

// bindRoom resolves the durable room behind key and records the membership.
// Failures leave the session without a room id; the join still goes ahead.
func (s *Session) bindRoom(ctx context.Context, key domain.ChatKey, userID domain.UserID) (domain.ChatKey, domain.RoomID) {
	r := s.relay

	findCtx, cancel := r.persistCtx(ctx)
	room, err := r.gateway.FindOrCreateRoom(findCtx, key)
	cancel()
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues(opFindOrCreateRoom).Inc()
		s.log.Error("Failed to resolve chat room", "error", err, "chat_id", key)
		s.setRoom(key, 0)
		return key, 0
	}

	if userID.Valid() {
		memberCtx, cancel := r.persistCtx(ctx)
		err := r.gateway.AddRoomMember(memberCtx, room.ID, userID)
		cancel()
		if err != nil {
			metrics.PersistenceFailures.WithLabelValues(opAddRoomMember).Inc()
			s.log.Error("Failed to add room member", "error", err, "room_id", room.ID, "user_id", userID)
		}
	}

	s.setRoom(room.Key, room.ID)
	return room.Key, room.ID
}

func (s *Session) history(ctx context.Context, roomID domain.RoomID) []domain.HistoryEntry {
	if roomID <= 0 {
		return nil
	}

	histCtx, cancel := s.relay.persistCtx(ctx)
	defer cancel()

	entries, err := s.relay.gateway.FetchRecentMessages(histCtx, roomID, s.relay.opts.HistoryLimit)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues(opFetchHistory).Inc()
		s.log.Error("Failed to fetch chat history", "error", err, "room_id", roomID)
		return nil
	}
	return lo.Reverse(entries)
}

func (s *Session) sendMessage(e domain.SendMessage) {
	conn, sender, ok := s.authorSend(e.UserID, e.ChatID, domain.EventMessage)
	if !ok {
		return
	}

	name := lo.Ternary(e.Name != "", e.Name, conn.Name)
	s.relay.broadcaster.ToRoom(conn.Room, domain.NewTextEvent(name, e.Text, e.LocalID, s.relay.now()))
	s.enqueue(persistJob{
		key:    e.ChatID,
		roomID: s.cachedRoomID(e.ChatID),
		sender: sender,
		text:   e.Text,
	})
}

func (s *Session) sendMedia(e domain.SendMedia) {
	conn, sender, ok := s.authorSend(e.UserID, e.ChatID, domain.EventMediaMessage)
	if !ok {
		return
	}

	name := lo.Ternary(e.Name != "", e.Name, conn.Name)
	s.relay.broadcaster.ToRoom(conn.Room, domain.NewMediaEvent(name, e.MediaURL, e.MediaType, e.LocalID, s.relay.now()))
	s.enqueue(persistJob{
		key:       e.ChatID,
		roomID:    s.cachedRoomID(e.ChatID),
		sender:    sender,
		mediaURL:  e.MediaURL,
		mediaType: e.MediaType,
		media:     true,
	})
}

func (s *Session) activity(e domain.Activity) {
	conn, ok := s.relay.registry.Get(s.id)
	if !ok || !conn.Joined() {
		s.log.Debug("Dropping activity outside a room")
		return
	}
	name := lo.Ternary(e.Name != "", e.Name, conn.Name)
	s.relay.broadcaster.ToRoomExcept(conn.Room, s.id, domain.NewActivityEvent(name))
}

// authorSend checks that a message may be relayed: the connection is in a
// room and the event names a sender and a chat.
func (s *Session) authorSend(claimed domain.UserID, key domain.ChatKey, event string) (domain.Connection, domain.UserID, bool) {
	conn, ok := s.relay.registry.Get(s.id)
	if !ok || !conn.Joined() {
		s.log.Debug("Dropping message outside a room", "event", event)
		return domain.Connection{}, 0, false
	}
	sender, ok := s.resolveUser(claimed)
	if !ok {
		s.log.Warn("Dropping message for foreign user", "event", event, "user_id", claimed)
		return domain.Connection{}, 0, false
	}
	if !sender.Valid() || key == "" {
		s.log.Debug("Dropping message without sender or chat", "event", event)
		return domain.Connection{}, 0, false
	}
	return conn, sender, true
}

// resolveUser reconciles the user id an event claims with the one proven at
// handshake. Anonymous connections are trusted as-is.
func (s *Session) resolveUser(claimed domain.UserID) (domain.UserID, bool) {
	if !s.authUser.Valid() {
		return claimed, true
	}
	if claimed == 0 || claimed == s.authUser {
		return s.authUser, true
	}
	return 0, false
}

func (s *Session) enqueue(job persistJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.jobs <- job:
	default:
		metrics.PersistenceFailures.WithLabelValues(opQueueFull).Inc()
		s.log.Warn("Persist queue full, dropping message", "chat_id", job.key)
	}
}

func (s *Session) persistLoop() {
	defer s.relay.persisters.Done()
	for job := range s.jobs {
		s.persist(job)
	}
}

func (s *Session) persist(job persistJob) {
	r := s.relay

	roomID := job.roomID
	if roomID <= 0 {
		ctx, cancel := r.persistCtx(context.Background())
		room, err := r.gateway.FindOrCreateRoom(ctx, job.key)
		cancel()
		if err != nil {
			metrics.PersistenceFailures.WithLabelValues(opFindOrCreateRoom).Inc()
			s.log.Error("Failed to resolve chat room for message", "error", err, "chat_id", job.key)
			return
		}
		roomID = room.ID
	}

	ctx, cancel := r.persistCtx(context.Background())
	defer cancel()

	if job.media {
		if err := r.gateway.InsertMediaMessage(ctx, roomID, job.sender, job.mediaURL, job.mediaType); err != nil {
			metrics.PersistenceFailures.WithLabelValues(opInsertMedia).Inc()
			s.log.Error("Failed to persist media message", "error", err, "room_id", roomID)
		}
		return
	}
	if err := r.gateway.InsertTextMessage(ctx, roomID, job.sender, job.text); err != nil {
		metrics.PersistenceFailures.WithLabelValues(opInsertMessage).Inc()
		s.log.Error("Failed to persist message", "error", err, "room_id", roomID)
	}
}

func (s *Session) setRoom(key domain.ChatKey, id domain.RoomID) {
	s.mu.Lock()
	s.chatKey = key
	s.roomID = id
	s.mu.Unlock()
}

func (s *Session) cachedRoomID(key domain.ChatKey) domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.chatKey {
		return s.roomID
	}
	return 0
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
