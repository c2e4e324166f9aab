package handler

import (
	"net/http"

	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	"relay-chat/internal/transport/wsdto"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	history *services.HistoryService
	reads   *services.ReadStateService
}

func NewMessageHandler(history *services.HistoryService, reads *services.ReadStateService) *MessageHandler {
	return &MessageHandler{history: history, reads: reads}
}

func (h *MessageHandler) DirectHistory(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	otherID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	before, limit, ok := historyQuery(c)
	if !ok {
		return
	}

	items, err := h.history.DirectMessages(c.Request.Context(), id.UserID, otherID, before, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewHistoryResponse(items, h.history.PageSize(limit))))
}

// MarkDirectRead is the REST twin of the markMessagesAsRead event.
func (h *MessageHandler) MarkDirectRead(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	otherID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	summary, err := h.reads.MarkDirectRead(c.Request.Context(), id, otherID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReadResponse{Summary: wsdto.FromSummary(summary)}))
}
