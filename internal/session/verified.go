package session

import (
	"context"
	"time"

	"laterai/internal/domain"
)

type verified struct {
	session domain.Session
}

// Verified wraps a session whose access token was already checked,
// such as the bearer of an API request. It never refreshes.
func Verified(s domain.Session) Source {
	return verified{session: s}
}

func (v verified) IsAuthenticated(ctx context.Context) bool {
	return v.session.UserID != "" && !v.session.Expired(time.Now())
}

func (v verified) Session(ctx context.Context) (domain.Session, error) {
	if !v.IsAuthenticated(ctx) {
		return domain.Session{}, domain.ErrUnauthenticated
	}
	return v.session, nil
}
