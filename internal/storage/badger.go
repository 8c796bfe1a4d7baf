package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"laterai/internal/domain"
)

// BadgerRepository implements Repository using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
	now func() time.Time
}

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
		now: time.Now,
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// RunGC reclaims value log space until ctx is cancelled.
func (r *BadgerRepository) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := r.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				r.log.Debug("BadgerDB GC completed")
			case errors.Is(err, badger.ErrNoRewrite):
				r.log.Debug("BadgerDB GC: no rewrite needed")
			case errors.Is(err, badger.ErrDBClosed):
				return
			default:
				r.log.WithError(err).Warn("BadgerDB GC failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// itemKey format: user:{ownerID}:item:{id}
func itemKey(ownerID, id string) []byte {
	return []byte(fmt.Sprintf("user:%s:item:%s", ownerID, id))
}

// ownerPrefix scans every item belonging to ownerID.
func ownerPrefix(ownerID string) []byte {
	return []byte(fmt.Sprintf("user:%s:item:", ownerID))
}

// Insert stores a new item, assigning its id and creation time.
func (r *BadgerRepository) Insert(ctx context.Context, ownerID string, item domain.SavedItem) (domain.SavedItem, error) {
	if ownerID == "" {
		return domain.SavedItem{}, &domain.PersistenceError{Op: "insert", Err: errors.New("owner id is required")}
	}

	item.ID = uuid.NewString()
	item.OwnerID = ownerID
	item.CreatedAt = r.now().UTC()
	if strings.TrimSpace(item.Title) == "" {
		item.Title = domain.DefaultTitle
	}
	item.Category = domain.ParseCategory(string(item.Category))
	item.Tags = domain.CapTags(item.Tags)

	log := r.log.WithFields(logrus.Fields{"owner_id": ownerID, "item_id": item.ID})

	itemBytes, err := json.Marshal(item)
	if err != nil {
		log.WithError(err).Error("Failed to marshal item to JSON")
		return domain.SavedItem{}, &domain.PersistenceError{Op: "insert", Err: err}
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(itemKey(ownerID, item.ID), itemBytes))
	})
	if err != nil {
		log.WithError(err).Error("Failed to insert item into BadgerDB")
		return domain.SavedItem{}, &domain.PersistenceError{Op: "insert", Err: err}
	}

	log.Debug("Item inserted")
	return item, nil
}

// UpdateByID merges patch into the owner's item.
func (r *BadgerRepository) UpdateByID(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.SavedItem, error) {
	log := r.log.WithFields(logrus.Fields{"owner_id": ownerID, "item_id": id})
	key := itemKey(ownerID, id)

	var updated domain.SavedItem
	err := r.db.Update(func(txn *badger.Txn) error {
		entry, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		raw, err := entry.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &updated); err != nil {
			return fmt.Errorf("failed to unmarshal item %s: %w", id, err)
		}

		patch.Apply(&updated)

		out, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return txn.Set(key, out)
	})
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug("Update for unknown item")
		return domain.SavedItem{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		log.WithError(err).Error("Failed to update item")
		return domain.SavedItem{}, &domain.PersistenceError{Op: "update", Err: err}
	}

	log.Debug("Item updated")
	return updated, nil
}

// QueryByOwner retrieves the owner's items, newest first.
func (r *BadgerRepository) QueryByOwner(ctx context.Context, ownerID string, limit int) ([]domain.SavedItem, error) {
	log := r.log.WithField("owner_id", ownerID)

	items := []domain.SavedItem{}
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := ownerPrefix(ownerID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			entry := it.Item()
			raw, err := entry.ValueCopy(nil)
			if err != nil {
				return err
			}
			var item domain.SavedItem
			if err := json.Unmarshal(raw, &item); err != nil {
				log.WithError(err).WithField("key", string(entry.Key())).Error("Failed to unmarshal item from DB")
				return fmt.Errorf("failed to unmarshal item data for key %s: %w", string(entry.Key()), err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to retrieve items from BadgerDB")
		return nil, fmt.Errorf("failed to query items for owner %s: %w", ownerID, err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	log.WithField("item_count", len(items)).Debug("Items retrieved")
	return items, nil
}

// DeleteByID removes the owner's item.
func (r *BadgerRepository) DeleteByID(ctx context.Context, id, ownerID string) error {
	log := r.log.WithFields(logrus.Fields{"owner_id": ownerID, "item_id": id})
	key := itemKey(ownerID, id)

	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		log.WithError(err).Error("Failed to delete item from BadgerDB")
		return &domain.PersistenceError{Op: "delete", Err: err}
	}

	log.Info("Item deleted")
	return nil
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
