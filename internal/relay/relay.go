package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pet_chat/internal/domain"
	"pet_chat/internal/metrics"
	"pet_chat/pkg/logger"
)

const welcomeText = "Welcome to the chat"

// Gateway is the durable store the relay writes history to and reads it from.
// service.ChatService satisfies it.
type Gateway interface {
	FindOrCreateRoom(ctx context.Context, key domain.ChatKey) (*domain.ChatRoom, error)
	AddRoomMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	InsertTextMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, text string) error
	InsertMediaMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, mediaURL, mediaType string) error
	FetchRecentMessages(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.HistoryEntry, error)
}

type Options struct {
	// HistoryLimit bounds the chatHistory sent on join.
	HistoryLimit int
	// PersistTimeout bounds every gateway call.
	PersistTimeout time.Duration
	// PersistQueueSize is the per-connection backlog of pending writes.
	PersistQueueSize int
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.PersistQueueSize <= 0 {
		o.PersistQueueSize = 64
	}
	return o
}

// Relay owns presence and fan-out for every live connection and hands each
// one a Session that runs the per-connection protocol.
type Relay struct {
	registry    *Registry
	broadcaster *Broadcaster
	gateway     Gateway
	opts        Options
	log         logger.Logger
	now         func() time.Time

	persisters sync.WaitGroup
}

func New(gateway Gateway, opts Options, log logger.Logger) *Relay {
	registry := NewRegistry()
	return &Relay{
		registry:    registry,
		broadcaster: NewBroadcaster(registry, log),
		gateway:     gateway,
		opts:        opts.withDefaults(),
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *Relay) Registry() *Registry {
	return r.registry
}

// Connect registers a new transport and returns its Session. authUser is the
// identity proven at handshake, or zero when the connection is anonymous.
func (r *Relay) Connect(sink Sink, authUser domain.UserID) *Session {
	id := domain.ConnectionID(uuid.NewString())
	r.registry.Attach(id, authUser, sink)
	metrics.Connections.Inc()

	s := &Session{
		id:       id,
		relay:    r,
		authUser: authUser,
		jobs:     make(chan persistJob, r.opts.PersistQueueSize),
		log:      r.log.With("connection_id", string(id)),
	}
	r.persisters.Add(1)
	go s.persistLoop()

	s.log.Debug("Connection attached", "user_id", authUser)
	r.broadcaster.ToOne(id, domain.NewNoticeEvent(welcomeText, r.now()))
	return s
}

// Disconnect removes the connection and tells its room. Calling it for an
// id that is already gone does nothing.
func (r *Relay) Disconnect(id domain.ConnectionID) {
	conn, ok := r.registry.Unregister(id)
	if !ok {
		return
	}
	metrics.Connections.Dec()
	r.log.Debug("Connection detached", "connection_id", id, "room", conn.Room)

	if !conn.Joined() {
		return
	}
	now := r.now()
	r.broadcaster.ToRoom(conn.Room, domain.NewNoticeEvent(fmt.Sprintf("%s has left the room", conn.Name), now))
	r.broadcaster.ToRoom(conn.Room, domain.NewUserListEvent(r.registry.MembersOf(conn.Room)))
	r.broadcaster.ToAll(domain.NewRoomListEvent(r.registry.AllRooms()))
}

// Shutdown closes every transport and waits for pending history writes.
func (r *Relay) Shutdown(ctx context.Context) error {
	for _, t := range r.registry.allTargets() {
		if err := t.sink.Close(); err != nil {
			r.log.Debug("Failed to close connection", "error", err, "connection_id", t.id)
		}
	}

	done := make(chan struct{})
	go func() {
		r.persisters.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}
}

func (r *Relay) persistCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.opts.PersistTimeout)
}
