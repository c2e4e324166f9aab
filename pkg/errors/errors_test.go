package relay_errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"forbidden", Forbidden("not your message"), "FORBIDDEN", http.StatusForbidden},
		{"wrapped not found", fmt.Errorf("load group: %w", ErrNotFound), "NOT_FOUND", http.StatusNotFound},
		{"window", WindowExpired("too late"), "WINDOW_EXPIRED", http.StatusUnprocessableEntity},
		{"validation", Invalid("text is required"), "INVALID_REQUEST", http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
		{"storage", errors.New("connection reset"), "OPERATION_FAILED", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessageHidesUnknownErrors(t *testing.T) {
	assert.Equal(t, "text is required", PublicMessage(Invalid("text is required")))
	assert.Equal(t, "operation failed", PublicMessage(errors.New("pq: relation does not exist")))
	assert.Equal(t, "", PublicMessage(nil))
}

func TestErrorUnwrapsToKind(t *testing.T) {
	err := Forbidden("only the sender can edit")
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "only the sender can edit", err.Error())
	assert.Equal(t, "not found", New(ErrNotFound, "").Error())
}
