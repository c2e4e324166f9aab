package handler

import (
	"net/http"

	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Block(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	targetID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.users.Block(c.Request.Context(), id.UserID, targetID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.BlockResponse{UserID: targetID.String(), Blocked: true}))
}

func (h *UserHandler) Unblock(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	targetID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.users.Unblock(c.Request.Context(), id.UserID, targetID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.BlockResponse{UserID: targetID.String(), Blocked: false}))
}

func (h *UserHandler) Online(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}

	online, err := h.users.OnlineUsers(c.Request.Context(), id.UserID)
	if err != nil {
		c.Error(err)
		return
	}
	ids := make([]string, 0, len(online))
	for _, u := range online {
		ids = append(ids, u.String())
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.OnlineUsersResponse{UserIDs: ids}))
}

func (h *UserHandler) Presence(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	targetID, ok := paramID(c, "id")
	if !ok {
		return
	}

	info, err := h.users.Presence(c.Request.Context(), id.UserID, targetID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresenceResponse{
		UserID:   info.UserID.String(),
		Online:   info.Online,
		LastSeen: info.LastSeen,
	}))
}
