package realtime

import (
	"github.com/google/uuid"
)

// Client is one realtime connection. Its outbound buffer is bounded; when it
// is full, messages for this client are dropped.
type Client struct {
	ID     string
	UserID string

	send chan Message
	// closed is guarded by the hub mutex.
	closed bool
}

func NewClient(userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan Message, buffer),
	}
}

// Messages is closed when the hub disconnects the client.
func (c *Client) Messages() <-chan Message {
	return c.send
}

func (c *Client) deliver(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}
