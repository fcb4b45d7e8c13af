package service

import (
	"pet_chat/internal/repository"
	"pet_chat/pkg/logger"
)

type Services struct {
	Chat      ChatService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, log logger.Logger) *Services {
	return &Services{
		Chat:      NewChatService(repos.Room, repos.Chat, log),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}
