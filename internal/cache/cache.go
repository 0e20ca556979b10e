// Package cache keeps a per-user snapshot of the last successfully fetched
// shift records, used as a read-only fallback while the network is down.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victorlcs87/gsv-sync/internal/store"
)

const keyPrefix = "gsvsync:snapshot:"

// Snapshot is the stored envelope. SavedAt is informational only; snapshots
// never expire and are overwritten wholesale on every successful fetch.
type Snapshot struct {
	SavedAt time.Time      `json:"saved_at"`
	Shifts  []*store.Shift `json:"shifts"`
}

// Commands is the subset of redis operations the snapshot store needs.
// *redis.Client satisfies it; tests supply a fake.
type Commands interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store persists shift snapshots in redis.
type Store struct {
	rdb Commands
}

// New creates a snapshot store backed by the given redis commands.
func New(rdb Commands) *Store {
	return &Store{rdb: rdb}
}

// Save overwrites the user's snapshot with the given record set.
func (s *Store) Save(ctx context.Context, userID string, shifts []*store.Shift) error {
	snap := Snapshot{
		SavedAt: time.Now().UTC(),
		Shifts:  shifts,
	}

	buf, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := s.rdb.Set(ctx, keyPrefix+userID, buf, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// Load returns the user's last snapshot. The boolean is false when no
// snapshot exists.
func (s *Store) Load(ctx context.Context, userID string) (*Snapshot, bool, error) {
	buf, err := s.rdb.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(buf, snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return snap, true, nil
}

// Clear removes the user's snapshot.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}
