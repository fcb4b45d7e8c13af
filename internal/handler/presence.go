package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pet_chat/internal/relay"
)

type PresenceHandler struct {
	registry *relay.Registry
}

func NewPresenceHandler(registry *relay.Registry) *PresenceHandler {
	return &PresenceHandler{registry: registry}
}

func (h *PresenceHandler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.registry.Summaries()})
}
