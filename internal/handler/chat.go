package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pet_chat/internal/domain"
	"pet_chat/internal/service"
	"pet_chat/pkg/logger"
)

type ChatHandler struct {
	chatService service.ChatService
	log         logger.Logger
}

func NewChatHandler(chatService service.ChatService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		log:         log,
	}
}

// GetMessages returns recent history for a chat, oldest first.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	key := domain.ChatKey(c.Param("chatId"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id required"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultHistoryLimit)))
	if err != nil {
		limit = service.DefaultHistoryLimit
	}

	entries, err := h.chatService.GetHistory(c.Request.Context(), key, limit)
	if err != nil {
		h.log.Error("Failed to load chat history", "error", err, "chat_id", key)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, domain.NewHistoryItems(entries))
}
