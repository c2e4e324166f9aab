package httpdto

import "time"

// OnlineUsersResponse is returned by GET /v1/users/online. Users on either
// side of a block are left out.
type OnlineUsersResponse struct {
	UserIDs []string `json:"userIds"`
}

type PresenceResponse struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type BlockResponse struct {
	UserID  string `json:"userId"`
	Blocked bool   `json:"blocked"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Storage string            `json:"storage"`
	Checks  map[string]string `json:"checks,omitempty"`
}
