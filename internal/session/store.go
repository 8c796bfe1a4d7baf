// Package session owns the current credential and its refresh lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"laterai/internal/domain"
	"laterai/internal/metrics"
)

// State of the store's state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// Refresher exchanges a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (domain.Session, error)
}

// Revoker invalidates a refresh token on logout.
type Revoker interface {
	SignOut(ctx context.Context, refreshToken string) error
}

// Persister writes the session through to durable storage.
type Persister interface {
	SaveDeviceSession(ctx context.Context, s domain.Session) error
	LoadDeviceSession(ctx context.Context) (domain.Session, error)
	ClearDeviceSession(ctx context.Context) error
}

// Source is what the capture pipeline needs from a session holder.
type Source interface {
	IsAuthenticated(ctx context.Context) bool
	Session(ctx context.Context) (domain.Session, error)
}

// ChangeKind tells listeners what happened.
type ChangeKind int

const (
	ChangeUpdated ChangeKind = iota
	ChangeCleared
)

// Change is delivered to listeners after every state change.
// Origin is empty for local changes and names the peer for synced ones.
type Change struct {
	Kind    ChangeKind
	Session domain.Session
	Origin  string
}

// Listener receives session changes synchronously.
type Listener func(Change)

const refreshKey = "refresh"

// Store holds the current session. It is safe for concurrent use;
// concurrent refresh triggers collapse into one in-flight refresh.
type Store struct {
	mu        sync.Mutex
	state     State
	current   domain.Session
	gen       uint64
	listeners map[int]Listener
	nextID    int

	group          singleflight.Group
	refresher      Refresher
	revoker        Revoker
	persister      Persister
	now            func() time.Time
	refreshTimeout time.Duration
	log            logrus.FieldLogger
	metrics        *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

func WithRevoker(r Revoker) Option { return func(s *Store) { s.revoker = r } }

func WithPersister(p Persister) Option { return func(s *Store) { s.persister = p } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

func WithRefreshTimeout(d time.Duration) Option { return func(s *Store) { s.refreshTimeout = d } }

// New creates an unauthenticated store.
func New(refresher Refresher, logger logrus.FieldLogger, opts ...Option) *Store {
	s := &Store{
		state:          StateUnauthenticated,
		listeners:      make(map[int]Listener),
		refresher:      refresher,
		now:            time.Now,
		refreshTimeout: 10 * time.Second,
		log:            logger.WithField("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login installs a freshly issued session.
func (s *Store) Login(ctx context.Context, sess domain.Session) error {
	return s.Replace(ctx, sess, "")
}

// Replace installs sess unconditionally. A zero session clears the store.
func (s *Store) Replace(ctx context.Context, sess domain.Session, origin string) error {
	if sess.IsZero() {
		return s.Clear(ctx, origin)
	}

	s.mu.Lock()
	s.current = sess
	s.state = StateAuthenticated
	s.gen++
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"user_id": sess.UserID, "origin": origin}).Info("Session updated")
	err := s.persist(ctx, sess)
	s.notify(Change{Kind: ChangeUpdated, Session: sess, Origin: origin})
	return err
}

// Clear forgets the session. Clearing an empty store notifies nobody.
func (s *Store) Clear(ctx context.Context, origin string) error {
	s.mu.Lock()
	was := s.state
	s.current = domain.Session{}
	s.state = StateUnauthenticated
	s.gen++
	s.mu.Unlock()

	if was == StateUnauthenticated {
		return nil
	}

	s.log.WithField("origin", origin).Info("Session cleared")
	err := s.forget(ctx)
	s.notify(Change{Kind: ChangeCleared, Origin: origin})
	return err
}

// Logout revokes the refresh token when possible and clears the store.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	token := s.current.RefreshToken
	s.mu.Unlock()

	if s.revoker != nil && token != "" {
		if err := s.revoker.SignOut(ctx, token); err != nil {
			s.log.WithError(err).Warn("Failed to revoke refresh token")
		}
	}
	return s.Clear(ctx, "")
}

// IsAuthenticated reports whether a valid session is available,
// refreshing an expired one first.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	_, err := s.Session(ctx)
	return err == nil
}

// Session returns the current unexpired session, refreshing it if needed.
func (s *Store) Session(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	switch {
	case s.state == StateUnauthenticated:
		s.mu.Unlock()
		return domain.Session{}, domain.ErrUnauthenticated
	case s.state == StateAuthenticated && !s.current.Expired(s.now()):
		cur := s.current
		s.mu.Unlock()
		return cur, nil
	}
	s.mu.Unlock()
	return s.refresh(ctx, 0)
}

// Token returns the access token of the current session.
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, err := s.Session(ctx)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnChange registers l and returns a function removing it.
func (s *Store) OnChange(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Restore loads a persisted session without notifying listeners.
func (s *Store) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	sess, err := s.persister.LoadDeviceSession(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if sess.IsZero() {
		return nil
	}

	s.mu.Lock()
	s.current = sess
	s.state = StateAuthenticated
	s.gen++
	s.mu.Unlock()

	s.log.WithField("user_id", sess.UserID).Info("Session restored")
	return nil
}

// Revalidate refreshes the session if it expires within margin.
func (s *Store) Revalidate(ctx context.Context, margin time.Duration) error {
	s.mu.Lock()
	state := s.state
	expiring := s.current.Expired(s.now().Add(margin))
	s.mu.Unlock()

	if state == StateUnauthenticated || (state == StateAuthenticated && !expiring) {
		return nil
	}
	_, err := s.refresh(ctx, margin)
	return err
}

// Run revalidates the session every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Revalidate(ctx, interval); err != nil {
				s.log.WithError(err).Warn("Periodic session check failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// refresh runs at most one refresh at a time; other callers wait for its result.
func (s *Store) refresh(ctx context.Context, margin time.Duration) (domain.Session, error) {
	v, err, _ := s.group.Do(refreshKey, func() (interface{}, error) {
		s.mu.Lock()
		if s.state == StateUnauthenticated {
			s.mu.Unlock()
			return domain.Session{}, domain.ErrUnauthenticated
		}
		if s.state == StateAuthenticated && !s.current.Expired(s.now().Add(margin)) {
			cur := s.current
			s.mu.Unlock()
			return cur, nil
		}
		gen := s.gen
		token := s.current.RefreshToken
		userID := s.current.UserID
		s.state = StateRefreshing
		s.mu.Unlock()

		log := s.log.WithField("user_id", userID)
		log.Debug("Refreshing session")

		var next domain.Session
		var rerr error
		switch {
		case s.refresher == nil:
			rerr = errors.New("no refresher configured")
		case token == "":
			rerr = errors.New("session has no refresh token")
		default:
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
			next, rerr = s.refresher.Refresh(rctx, token)
			cancel()
		}

		s.mu.Lock()
		if s.gen != gen {
			// Replaced or logged out while the refresh was in flight; that change wins.
			state, cur := s.state, s.current
			s.mu.Unlock()
			if state == StateAuthenticated && !cur.Expired(s.now()) {
				return cur, nil
			}
			return domain.Session{}, domain.ErrUnauthenticated
		}

		if rerr != nil {
			s.current = domain.Session{}
			s.state = StateUnauthenticated
			s.gen++
			s.mu.Unlock()

			s.metrics.SessionRefresh(metrics.OutcomeFailed)
			log.WithError(rerr).Warn("Session refresh failed")
			_ = s.forget(ctx)
			s.notify(Change{Kind: ChangeCleared})
			return domain.Session{}, fmt.Errorf("%w: refresh failed: %v", domain.ErrUnauthenticated, rerr)
		}

		s.current = next
		s.state = StateAuthenticated
		s.gen++
		s.mu.Unlock()

		s.metrics.SessionRefresh(metrics.OutcomeOK)
		log.Info("Session refreshed")
		_ = s.persist(ctx, next)
		s.notify(Change{Kind: ChangeUpdated, Session: next})
		return next, nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return v.(domain.Session), nil
}

func (s *Store) persist(ctx context.Context, sess domain.Session) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveDeviceSession(context.WithoutCancel(ctx), sess); err != nil {
		s.log.WithError(err).Warn("Failed to persist session")
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *Store) forget(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.ClearDeviceSession(context.WithoutCancel(ctx)); err != nil {
		s.log.WithError(err).Warn("Failed to clear persisted session")
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Store) notify(c Change) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(c)
	}
}
