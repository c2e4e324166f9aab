// Package presencetest provides an in-memory presence.Conn for tests.
package presencetest

import (
	"sync"

	"relay-chat/internal/transport/wsdto"

	"github.com/google/uuid"
)

type Conn struct {
	id     string
	userID uuid.UUID

	mu     sync.Mutex
	events []wsdto.Event
	closed bool
	full   bool
}

func NewConn(userID uuid.UUID) *Conn {
	return &Conn{id: uuid.NewString(), userID: userID}
}

func (c *Conn) ID() string        { return c.id }
func (c *Conn) UserID() uuid.UUID { return c.userID }

func (c *Conn) Send(evt wsdto.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.events = append(c.events, evt)
	return true
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// SetFull makes every following Send fail as if the outbound queue were full.
func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Events() []wsdto.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wsdto.Event(nil), c.events...)
}

// Types lists the types of received events in order.
func (c *Conn) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

// Last returns the most recent event of the given type.
func (c *Conn) Last(eventType string) (wsdto.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == eventType {
			return c.events[i], true
		}
	}
	return wsdto.Event{}, false
}

func (c *Conn) Count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
