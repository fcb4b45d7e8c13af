package handler

import (
	"pet_chat/internal/config"
	"pet_chat/internal/relay"
	"pet_chat/internal/service"
	"pet_chat/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Chat      *ChatHandler
	Presence  *PresenceHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, r *relay.Relay, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(r.Registry()),
		Chat:      NewChatHandler(services.Chat, log),
		Presence:  NewPresenceHandler(r.Registry()),
		WebSocket: NewWebSocketHandler(r, cfg.Relay, cfg.IsProduction(), log),
	}
}
