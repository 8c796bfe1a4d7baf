package storage

import (
	"context"
	"time"

	"laterai/internal/domain"
)

// ItemRepository is the owner-scoped item store the capture pipeline writes to.
// Every call filters by ownerID, so a caller can never touch another owner's row.
type ItemRepository interface {
	// Insert stores a new item for ownerID. The store assigns ID and CreatedAt.
	Insert(ctx context.Context, ownerID string, item domain.SavedItem) (domain.SavedItem, error)

	// UpdateByID merges patch into the owner's item and returns the result.
	// It returns domain.ErrNotFound when the owner has no such item.
	UpdateByID(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.SavedItem, error)

	// QueryByOwner lists the owner's items, newest first, capped at limit (0 = no cap).
	QueryByOwner(ctx context.Context, ownerID string, limit int) ([]domain.SavedItem, error)

	// DeleteByID removes the owner's item. Deletion is final.
	DeleteByID(ctx context.Context, id, ownerID string) error
}

// AccountRepository stores registered users.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account domain.Account) error
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
}

// TokenRepository stores opaque refresh tokens until they expire.
type TokenRepository interface {
	SaveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error
	// ConsumeRefreshToken returns the token's user and deletes it.
	ConsumeRefreshToken(ctx context.Context, token string) (string, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}

// DeviceSessionRepository persists the session of the local device.
type DeviceSessionRepository interface {
	SaveDeviceSession(ctx context.Context, s domain.Session) error
	LoadDeviceSession(ctx context.Context) (domain.Session, error)
	ClearDeviceSession(ctx context.Context) error
}

// Repository combines every storage concern behind one handle.
type Repository interface {
	ItemRepository
	AccountRepository
	TokenRepository
	DeviceSessionRepository

	// Close gracefully shuts down the repository connection.
	Close() error
}
