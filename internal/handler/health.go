package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pet_chat/internal/relay"
)

type HealthHandler struct {
	registry *relay.Registry
}

func NewHealthHandler(registry *relay.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "pet-chat-relay",
		"connections": h.registry.Count(),
	})
}
