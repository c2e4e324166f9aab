package handler

import (
	"net/http"

	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	"relay-chat/internal/transport/wsdto"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	summaries *services.SummaryService
}

func NewConversationHandler(summaries *services.SummaryService) *ConversationHandler {
	return &ConversationHandler{summaries: summaries}
}

// List returns every direct chat and group the caller can see something in.
func (h *ConversationHandler) List(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}

	items, err := h.summaries.ListConversations(c.Request.Context(), id.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListConversationsResponse{
		Conversations: wsdto.FromSummaries(items),
	}))
}
