package handler

import (
	"net/http"

	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	"relay-chat/internal/transport/wsdto"

	"github.com/gin-gonic/gin"
)

type GroupHandler struct {
	groups    *services.GroupService
	history   *services.HistoryService
	reads     *services.ReadStateService
	summaries *services.SummaryService
}

func NewGroupHandler(groups *services.GroupService, history *services.HistoryService, reads *services.ReadStateService, summaries *services.SummaryService) *GroupHandler {
	return &GroupHandler{groups: groups, history: history, reads: reads, summaries: summaries}
}

func (h *GroupHandler) Create(c *gin.Context) {
	var req httpdto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	memberIDs, ok := parseIDs(req.MemberIDs)
	if !ok {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid member id", "INVALID_REQUEST"))
		return
	}

	g, err := h.groups.Create(c.Request.Context(), id, services.CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		MemberIDs:   memberIDs,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.GroupResponse{Group: wsdto.FromGroup(g)}))
}

// Get is open to current members and to ex-members, who see the group as it
// is now along with their frozen summary.
func (h *GroupHandler) Get(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}

	g, err := h.groups.Get(c.Request.Context(), id.UserID, groupID)
	if err != nil {
		c.Error(err)
		return
	}
	summary, err := h.summaries.Group(c.Request.Context(), g, id.UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.GroupResponse{
		Group:   wsdto.FromGroup(g),
		Summary: wsdto.FromSummary(summary),
	}))
}

func (h *GroupHandler) AddMembers(c *gin.Context) {
	var req httpdto.AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}
	memberIDs, ok := parseIDs(req.MemberIDs)
	if !ok {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid member id", "INVALID_REQUEST"))
		return
	}

	g, err := h.groups.AddMembers(c.Request.Context(), id, groupID, memberIDs)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.GroupResponse{Group: wsdto.FromGroup(g)}))
}

func (h *GroupHandler) RemoveMember(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}
	targetID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	g, err := h.groups.RemoveMember(c.Request.Context(), id, groupID, targetID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.GroupResponse{Group: wsdto.FromGroup(g)}))
}

func (h *GroupHandler) Leave(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}

	if err := h.groups.Leave(c.Request.Context(), id, groupID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) Messages(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}
	before, limit, ok := historyQuery(c)
	if !ok {
		return
	}

	items, err := h.history.GroupMessages(c.Request.Context(), id.UserID, groupID, before, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewHistoryResponse(items, h.history.PageSize(limit))))
}

func (h *GroupHandler) MarkRead(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}

	summary, err := h.reads.MarkGroupRead(c.Request.Context(), id, groupID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReadResponse{Summary: wsdto.FromSummary(summary)}))
}
