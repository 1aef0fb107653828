// Package redis caches the latest snapshot of each session in Redis so
// presentation readers can follow a game without touching the engine.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

const (
	defaultPrefix  = "mekencounter:snapshot:"
	defaultTimeout = 2 * time.Second
	// index score for snapshots that never expire
	noExpiryScore = 4102444800 // 2100-01-01
)

// Snapshot is the cached view of one session
type Snapshot struct {
	GameID  string           `json:"game_id"`
	Version int              `json:"version"`
	SavedAt time.Time        `json:"saved_at"`
	State   *state.GameState `json:"state"`
}

// SnapshotStore keeps one JSON snapshot per game plus a ZSET index scored by
// expiry time
type SnapshotStore struct {
	client  *backend.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a SnapshotStore
type Option func(*SnapshotStore)

// WithTTL expires snapshots after ttl. 0 keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *SnapshotStore) { s.ttl = ttl }
}

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *SnapshotStore) { s.prefix = prefix }
}

// WithClock sets the clock used for index scores
func WithClock(now func() time.Time) Option {
	return func(s *SnapshotStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *SnapshotStore) { s.logger = logger }
}

// WithObserveTimeout bounds each write made from Observe
func WithObserveTimeout(d time.Duration) Option {
	return func(s *SnapshotStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New connects to the Redis server at address
func New(address, password string, db int, opts ...Option) *SnapshotStore {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing client
func NewFromClient(client *backend.Client, opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		client:  client,
		prefix:  defaultPrefix,
		timeout: defaultTimeout,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "RedisSnapshotStore").Logger()
	return s
}

func (s *SnapshotStore) key(gameID string) string {
	return s.prefix + gameID
}

func (s *SnapshotStore) indexKey() string {
	return s.prefix + "index"
}

// Ping checks the connection
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save writes the snapshot and refreshes its index entry
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.GameID == "" {
		return core.Validationf("snapshot has no game id")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = s.now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	score := float64(noExpiryScore)
	if s.ttl > 0 {
		score = float64(s.now().Add(s.ttl).Unix())
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(snap.GameID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: snap.GameID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot to redis: %w", err)
	}
	return nil
}

// Load reads the snapshot of a game
func (s *SnapshotStore) Load(ctx context.Context, gameID string) (Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(gameID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return Snapshot{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, gameID)
		}
		return Snapshot{}, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes a game's snapshot
func (s *SnapshotStore) Delete(ctx context.Context, gameID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(gameID))
	pipe.ZRem(ctx, s.indexKey(), gameID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the ids of games with a live snapshot, pruning expired index
// entries first
func (s *SnapshotStore) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(s.now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired snapshots: %w", err)
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return ids, nil
}

// Observe saves the snapshot after every commit or undo. Failures are logged;
// the cache is never authoritative.
func (s *SnapshotStore) Observe(snapshot *state.GameState, change session.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	snap := Snapshot{
		GameID:  change.GameID,
		Version: snapshot.LastSequence,
		State:   snapshot,
	}
	if err := s.Save(ctx, snap); err != nil {
		s.logger.Warn().
			Err(err).
			Str("game_id", change.GameID).
			Str("change", string(change.Kind)).
			Msg("Failed to cache snapshot")
	}
}

// Close closes the client
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

var _ session.Observer = (*SnapshotStore)(nil)
