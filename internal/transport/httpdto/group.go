package httpdto

import "relay-chat/internal/transport/wsdto"

// CreateGroupRequest is used for POST /v1/groups
type CreateGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	MemberIDs   []string `json:"memberIds"`
}

// AddMembersRequest is used for POST /v1/groups/:groupId/members
type AddMembersRequest struct {
	MemberIDs []string `json:"memberIds" binding:"required,min=1"`
}

type GroupResponse struct {
	Group   wsdto.Group    `json:"group"`
	Summary *wsdto.Summary `json:"summary,omitempty"`
}
