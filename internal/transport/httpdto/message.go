package httpdto

import (
	"time"

	"relay-chat/internal/domain/message"
	"relay-chat/internal/transport/wsdto"
)

// NewHistoryResponse pages oldest first. A full page carries the timestamp of
// its oldest message as the next cursor.
func NewHistoryResponse(ms []message.Message, limit int) HistoryResponse {
	resp := HistoryResponse{Messages: wsdto.FromMessages(ms)}
	if limit > 0 && len(ms) == limit {
		resp.NextBefore = ms[0].CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}
