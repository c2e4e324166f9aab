package httpdto

import relay_errors "relay-chat/pkg/errors"

// Response is the envelope of every REST reply. Code carries the error
// taxonomy code so clients can branch without parsing Error.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

func NewErrorResponse(msg, code string) Response[any] {
	return Response[any]{Error: msg, Code: code}
}

// FromError maps err onto its HTTP status and a body that never leaks
// internal failure details.
func FromError(err error) (int, Response[any]) {
	return relay_errors.HTTPStatus(err), NewErrorResponse(relay_errors.PublicMessage(err), relay_errors.Code(err))
}
