package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"pricewatch/models"

	bolt "github.com/boltdb/bolt"
)

var (
	itemsBucket = []byte("items")
	// normalized url -> item id
	urlsBucket = []byte("urls")
)

// BoltStore keeps items as JSON documents in an embedded BoltDB file
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{itemsBucket, urlsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file lock
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// FetchMonitored returns every stored item in creation order
func (s *BoltStore) FetchMonitored(ctx context.Context) ([]models.MonitoredItem, error) {
	var items []models.MonitoredItem
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(itemsBucket).ForEach(func(_, v []byte) error {
			var item models.MonitoredItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	sortByCreation(items)
	return items, nil
}

// Insert stores a new item, rejecting a duplicate normalized URL
func (s *BoltStore) Insert(ctx context.Context, item models.MonitoredItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		urls := tx.Bucket(urlsBucket)
		key := []byte(item.NormalizedURL())
		if urls.Get(key) != nil {
			return models.ErrDuplicateProduct
		}
		if err := putItem(tx, item); err != nil {
			return err
		}
		return urls.Put(key, []byte(item.ID))
	})
}

// Save overwrites the given items in one transaction
func (s *BoltStore) Save(ctx context.Context, items []models.MonitoredItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, item := range items {
			if tx.Bucket(itemsBucket).Get([]byte(item.ID)) == nil {
				return fmt.Errorf("save %s: %w", item.ID, models.ErrItemNotFound)
			}
			if err := putItem(tx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes an item and its URL index entry
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket(itemsBucket)
		data := items.Get([]byte(id))
		if data == nil {
			return models.ErrItemNotFound
		}
		var item models.MonitoredItem
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		if err := tx.Bucket(urlsBucket).Delete([]byte(item.NormalizedURL())); err != nil {
			return err
		}
		return items.Delete([]byte(id))
	})
}

func putItem(tx *bolt.Tx, item models.MonitoredItem) error {
	data, err := json.Marshal(&item)
	if err != nil {
		return err
	}
	return tx.Bucket(itemsBucket).Put([]byte(item.ID), data)
}

func sortByCreation(items []models.MonitoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
