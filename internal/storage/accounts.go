package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"laterai/internal/domain"
)

// ErrAlreadyExists is returned when an account email is taken.
var ErrAlreadyExists = errors.New("already exists")

var deviceSessionKey = []byte("device:session")

func accountKey(email string) []byte {
	return []byte("account:" + strings.ToLower(strings.TrimSpace(email)))
}

func refreshKey(token string) []byte {
	return []byte("refresh:" + token)
}

// CreateAccount stores a new account keyed by its normalised email.
func (r *BadgerRepository) CreateAccount(ctx context.Context, account domain.Account) error {
	key := accountKey(account.Email)
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, raw)
	})
	if errors.Is(err, ErrAlreadyExists) {
		return fmt.Errorf("account %s: %w", account.Email, ErrAlreadyExists)
	}
	if err != nil {
		r.log.WithError(err).Error("Failed to create account")
		return &domain.PersistenceError{Op: "create account", Err: err}
	}
	r.log.WithField("account_id", account.ID).Info("Account created")
	return nil
}

// GetAccountByEmail returns domain.ErrNotFound when no account uses email.
func (r *BadgerRepository) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	var account domain.Account
	err := r.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(accountKey(email))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &account)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Account{}, fmt.Errorf("account %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// SaveRefreshToken stores token with a TTL so expired tokens vanish on their own.
func (r *BadgerRepository) SaveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(refreshKey(token), []byte(userID)).WithTTL(ttl))
	})
	if err != nil {
		return &domain.PersistenceError{Op: "save refresh token", Err: err}
	}
	return nil
}

// ConsumeRefreshToken resolves and deletes token in one transaction.
func (r *BadgerRepository) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := r.db.Update(func(txn *badger.Txn) error {
		key := refreshKey(token)
		entry, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err := entry.ValueCopy(nil)
		if err != nil {
			return err
		}
		userID = string(raw)
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("refresh token: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", &domain.PersistenceError{Op: "consume refresh token", Err: err}
	}
	return userID, nil
}

// DeleteRefreshToken revokes token. Unknown tokens are ignored.
func (r *BadgerRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(refreshKey(token))
	})
	if err != nil {
		return &domain.PersistenceError{Op: "delete refresh token", Err: err}
	}
	return nil
}

// SaveDeviceSession persists the local device's session.
func (r *BadgerRepository) SaveDeviceSession(ctx context.Context, s domain.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(deviceSessionKey, raw)
	}); err != nil {
		return &domain.PersistenceError{Op: "save session", Err: err}
	}
	return nil
}

// LoadDeviceSession returns domain.ErrNotFound when no session was saved.
func (r *BadgerRepository) LoadDeviceSession(ctx context.Context) (domain.Session, error) {
	var s domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(deviceSessionKey)
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Session{}, fmt.Errorf("device session: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return s, nil
}

// ClearDeviceSession forgets the local device's session.
func (r *BadgerRepository) ClearDeviceSession(ctx context.Context) error {
	if err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(deviceSessionKey)
	}); err != nil {
		return &domain.PersistenceError{Op: "clear session", Err: err}
	}
	return nil
}
