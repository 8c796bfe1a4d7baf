// Package ctxsync keeps session stores in separate contexts consistent.
//
// The protocol has two messages. SESSION_UPDATED replaces the receiver's
// session unconditionally and LOGGED_OUT clears it. Delivery is best
// effort; a stale receiver catches up on the next message or its own
// periodic session check.
package ctxsync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"laterai/internal/domain"
)

type MessageType string

const (
	MessageSessionUpdated MessageType = "SESSION_UPDATED"
	MessageLoggedOut      MessageType = "LOGGED_OUT"
)

// Message is the wire form shared by every transport.
type Message struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Session *domain.Session `json:"session,omitempty"`
	Origin  string          `json:"origin"`
	SentAt  time.Time       `json:"sent_at"`
}

func SessionUpdated(origin string, s domain.Session) Message {
	return Message{ID: uuid.NewString(), Type: MessageSessionUpdated, Session: &s, Origin: origin, SentAt: time.Now().UTC()}
}

func LoggedOut(origin string) Message {
	return Message{ID: uuid.NewString(), Type: MessageLoggedOut, Origin: origin, SentAt: time.Now().UTC()}
}

// Transport delivers messages between contexts, fire and forget.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe calls handler for every message until ctx is done.
	Subscribe(ctx context.Context, handler func(Message)) error
}
