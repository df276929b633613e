package node

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCache  = []byte("snapshot_cache")
	keySnapshot  = []byte("snapshot")
	keyVersionID = []byte("version_id")
)

// Cache persists the last-applied snapshot to a small BoltDB file so a
// restarted node can start serving its last-known-good configuration
// before its first successful poll lands, instead of 404-ing every
// bound port until the control plane answers.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (creating if absent) the cache file under dataDir.
func OpenCache(dataDir string) (*Cache, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "node-cache.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open node cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCache)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save records snap as the last-applied snapshot, alongside the
// version id it was published as.
func (c *Cache) Save(versionID *uuid.UUID, snap *types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	versionData, err := json.Marshal(versionID)
	if err != nil {
		return fmt.Errorf("marshal version id: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCache)
		if err := b.Put(keySnapshot, data); err != nil {
			return err
		}
		return b.Put(keyVersionID, versionData)
	})
}

// Load returns the last-saved snapshot and version id, or ok=false if
// nothing has been saved yet.
func (c *Cache) Load() (versionID *uuid.UUID, snap *types.Snapshot, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCache)
		data := b.Get(keySnapshot)
		if data == nil {
			return nil
		}
		var s types.Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal cached snapshot: %w", err)
		}
		var v *uuid.UUID
		if versionData := b.Get(keyVersionID); versionData != nil {
			if err := json.Unmarshal(versionData, &v); err != nil {
				return fmt.Errorf("unmarshal cached version id: %w", err)
			}
		}
		snap = &s
		versionID = v
		ok = true
		return nil
	})
	return versionID, snap, ok, err
}
