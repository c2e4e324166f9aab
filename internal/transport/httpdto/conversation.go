package httpdto

import "relay-chat/internal/transport/wsdto"

// ListConversationsResponse is returned by GET /v1/conversations, most
// recent activity first.
type ListConversationsResponse struct {
	Conversations []*wsdto.Summary `json:"conversations"`
}

// HistoryQuery holds the paging parameters of the history endpoints. Before
// is an RFC 3339 timestamp; the page holds messages strictly older than it.
type HistoryQuery struct {
	Before string `form:"before"`
	Limit  int    `form:"limit"`
}

type HistoryResponse struct {
	Messages []wsdto.Message `json:"messages"`
	// NextBefore is the cursor for the next older page, empty on the last one.
	NextBefore string `json:"nextBefore,omitempty"`
}

type ReadResponse struct {
	Summary *wsdto.Summary `json:"summary"`
}
