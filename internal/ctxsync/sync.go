package ctxsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"laterai/internal/domain"
	"laterai/internal/session"
)

const (
	maxSeen        = 256
	publishTimeout = 5 * time.Second
)

// Sync binds a session store to a transport. Local changes are
// published; remote messages are applied last-write-wins.
type Sync struct {
	store     *session.Store
	transport Transport
	origin    string
	log       logrus.FieldLogger

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// New creates a Sync. An empty origin gets a random one.
func New(store *session.Store, transport Transport, origin string, logger logrus.FieldLogger) *Sync {
	if origin == "" {
		origin = uuid.NewString()
	}
	return &Sync{
		store:     store,
		transport: transport,
		origin:    origin,
		log:       logger.WithFields(logrus.Fields{"component": "ctxsync", "origin": origin}),
		seen:      make(map[string]struct{}),
	}
}

// Origin identifies this side in published messages.
func (s *Sync) Origin() string { return s.origin }

// Run publishes local changes and applies remote messages until ctx is done.
func (s *Sync) Run(ctx context.Context) error {
	unsubscribe := s.store.OnChange(s.publishLocal)
	defer unsubscribe()

	return s.transport.Subscribe(ctx, func(msg Message) {
		if err := s.Apply(ctx, msg); err != nil {
			s.log.WithError(err).Warn("Failed to apply sync message")
		}
	})
}

// Apply processes one remote message. Messages from this side and
// messages already processed are ignored.
func (s *Sync) Apply(ctx context.Context, msg Message) error {
	if msg.Origin == s.origin || !s.markSeen(msg.ID) {
		return nil
	}

	log := s.log.WithFields(logrus.Fields{"from": msg.Origin, "type": msg.Type})
	switch msg.Type {
	case MessageSessionUpdated:
		if msg.Session == nil {
			return errors.New("SESSION_UPDATED without session")
		}
		log.Info("Applying remote session")
		return s.store.Replace(ctx, *msg.Session, msg.Origin)
	case MessageLoggedOut:
		log.Info("Applying remote logout")
		return s.store.Clear(ctx, msg.Origin)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// publishLocal forwards changes made on this side. Changes applied from
// a remote message carry that message's origin and are not echoed.
func (s *Sync) publishLocal(c session.Change) {
	if c.Origin != "" {
		return
	}

	var msg Message
	switch c.Kind {
	case session.ChangeUpdated:
		msg = SessionUpdated(s.origin, c.Session)
	case session.ChangeCleared:
		msg = LoggedOut(s.origin)
	default:
		return
	}
	s.markSeen(msg.ID)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.transport.Publish(ctx, msg); err != nil {
		s.log.WithError(err).WithField("type", msg.Type).Warn("Failed to publish session change")
	}
}

// markSeen records id and reports whether it was new.
func (s *Sync) markSeen(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > maxSeen {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

// Announcer publishes session changes for a context that has no
// session store of its own, such as the API after a login.
type Announcer struct {
	transport Transport
	origin    string
}

func NewAnnouncer(transport Transport, origin string) *Announcer {
	if origin == "" {
		origin = uuid.NewString()
	}
	return &Announcer{transport: transport, origin: origin}
}

func (a *Announcer) SessionUpdated(ctx context.Context, s domain.Session) error {
	return a.transport.Publish(ctx, SessionUpdated(a.origin, s))
}

func (a *Announcer) LoggedOut(ctx context.Context) error {
	return a.transport.Publish(ctx, LoggedOut(a.origin))
}
