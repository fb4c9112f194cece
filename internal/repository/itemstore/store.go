// Package itemstore persists searchable items and feedback records in
// BadgerDB. It is the system of record for item data; the vector index and
// session store only hold derived state.
package itemstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/stashbox-io/stashbox/internal/domain"
)

const (
	itemPrefix     = "item:"
	feedbackPrefix = "feedback:"
)

// Store wraps a BadgerDB instance.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path. inMemory is used by tests and
// local runs without persistence.
func Open(path string, inMemory bool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database is usable.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("item store is closed")
	}
	return nil
}

// Put stores or replaces an item.
func (s *Store) Put(_ context.Context, item *domain.Item) error {
	if item.ID == "" || item.OwnerID == "" {
		return fmt.Errorf("%w: item and owner ids are required", domain.ErrInvalidQuery)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", item.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(itemKey(item.OwnerID, item.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store item %s: %w", item.ID, err)
	}
	return nil
}

// Get loads one item of the given owner.
func (s *Store) Get(_ context.Context, ownerID, id string) (*domain.Item, error) {
	var item domain.Item
	err := s.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(itemKey(ownerID, id))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("load item %s: %w", id, err)
	}
	return &item, nil
}

// Delete removes an item. Missing keys are a no-op.
func (s *Store) Delete(_ context.Context, ownerID, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(itemKey(ownerID, id))
	})
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

// ListByOwner returns all items of one owner, newest first.
func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]*domain.Item, error) {
	items, err := s.scan([]byte(itemPrefix + ownerID + "/"))
	if err != nil {
		return nil, fmt.Errorf("list items for owner: %w", err)
	}
	return items, nil
}

// ListAll returns every stored item, newest first. Used by reindexing.
func (s *Store) ListAll(_ context.Context) ([]*domain.Item, error) {
	items, err := s.scan([]byte(itemPrefix))
	if err != nil {
		return nil, fmt.Errorf("list all items: %w", err)
	}
	return items, nil
}

// Count returns the number of stored items.
func (s *Store) Count(_ context.Context) (int, error) {
	n := 0
	prefix := []byte(itemPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// SetVector attaches an embedding vector to a stored item.
func (s *Store) SetVector(ctx context.Context, ownerID, id string, vector []float32) error {
	item, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	item.Vector = vector
	return s.Put(ctx, item)
}

// PutFeedback stores an advisory feedback record.
func (s *Store) PutFeedback(_ context.Context, fb *domain.Feedback) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal feedback %s: %w", fb.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(feedbackPrefix+fb.OwnerID+"/"+fb.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store feedback %s: %w", fb.ID, err)
	}
	return nil
}

// ListFeedback returns up to limit feedback records of one owner, newest first.
func (s *Store) ListFeedback(_ context.Context, ownerID string, limit int) ([]*domain.Feedback, error) {
	var records []*domain.Feedback
	prefix := []byte(feedbackPrefix + ownerID + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var fb domain.Feedback
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &fb)
			})
			if err != nil {
				return err
			}
			records = append(records, &fb)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) scan(prefix []byte) ([]*domain.Item, error) {
	var items []*domain.Item
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item domain.Item
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			})
			if err != nil {
				return err
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func itemKey(ownerID, id string) []byte {
	return []byte(itemPrefix + ownerID + "/" + id)
}

// badgerLogger adapts zap to the badger.Logger interface.
type badgerLogger struct {
	logger *zap.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, args ...any)   { l.logger.Error(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Warningf(msg string, args ...any) { l.logger.Warn(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Infof(msg string, args ...any)    { l.logger.Debug(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Debugf(msg string, args ...any)   { l.logger.Debug(fmt.Sprintf(msg, args...)) }
