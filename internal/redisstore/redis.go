// Package redisstore keeps relationship snapshots and the update log in
// Redis, for deployments that run several affinity servers against shared
// state.
package redisstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lazypower/affinity/internal/store"
)

// DefaultPrefix namespaces every key this package writes.
const DefaultPrefix = "affinity"

// DefaultLogSize is the number of update records kept per relationship.
const DefaultLogSize = 1000

// Config configures the Redis store.
type Config struct {
	Prefix  string        // key prefix, default "affinity"
	TTL     time.Duration // snapshot expiry, 0 = no expiry
	LogSize int           // update records kept per relationship, default 1000
}

// Store persists snapshots under "{prefix}:snapshot:{user}:{session}" and
// update logs under "{prefix}:log:{user}:{session}". User and session IDs
// are query-escaped so a ':' inside an ID cannot collide with the separator.
// The set "{prefix}:relationships" indexes every stored key.
type Store struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	logSize int64
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.LogSize <= 0 {
		cfg.LogSize = DefaultLogSize
	}
	return &Store{
		client:  client,
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
		logSize: int64(cfg.LogSize),
	}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(client, cfg), nil
}

func member(userID, sessionID string) string {
	return url.QueryEscape(userID) + ":" + url.QueryEscape(sessionID)
}

func (s *Store) snapshotKey(userID, sessionID string) string {
	return s.prefix + ":snapshot:" + member(userID, sessionID)
}

func (s *Store) logKey(userID, sessionID string) string {
	return s.prefix + ":log:" + member(userID, sessionID)
}

func (s *Store) indexKey() string {
	return s.prefix + ":relationships"
}

// LoadSnapshot returns nil, nil when no snapshot is stored.
func (s *Store) LoadSnapshot(ctx context.Context, userID, sessionID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.snapshotKey(userID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

// SaveSnapshot writes the snapshot and indexes the relationship.
func (s *Store) SaveSnapshot(ctx context.Context, userID, sessionID string, snapshot []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.snapshotKey(userID, sessionID), snapshot, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), member(userID, sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the snapshot, its log and its index entry.
func (s *Store) DeleteSnapshot(ctx context.Context, userID, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.snapshotKey(userID, sessionID), s.logKey(userID, sessionID))
	pipe.SRem(ctx, s.indexKey(), member(userID, sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Key identifies a stored relationship.
type Key struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// ListRelationships returns every indexed relationship, sorted by user then
// session. Index entries whose snapshot has expired are dropped.
func (s *Store) ListRelationships(ctx context.Context) ([]Key, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}

	var keys []Key
	for _, m := range members {
		k, ok := parseMember(m)
		if !ok {
			continue
		}
		n, err := s.client.Exists(ctx, s.snapshotKey(k.UserID, k.SessionID)).Result()
		if err != nil {
			return nil, fmt.Errorf("check snapshot: %w", err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.indexKey(), m)
			continue
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(strings.Compare(a.UserID, b.UserID), strings.Compare(a.SessionID, b.SessionID))
	})
	return keys, nil
}

func parseMember(m string) (Key, bool) {
	user, session, ok := strings.Cut(m, ":")
	if !ok {
		return Key{}, false
	}
	u, err := url.QueryUnescape(user)
	if err != nil {
		return Key{}, false
	}
	sess, err := url.QueryUnescape(session)
	if err != nil {
		return Key{}, false
	}
	return Key{UserID: u, SessionID: sess}, true
}

// logEntry is the JSON form of a store.UpdateRecord in a Redis list.
type logEntry struct {
	ID           string  `json:"id"`
	ElapsedHours float64 `json:"elapsed_hours"`
	Event        string  `json:"event"`
	Category     string  `json:"category"`
	Loops        string  `json:"loops"`
	CreatedAt    int64   `json:"created_at"`
}

// AppendUpdate pushes an update record and trims the log to its cap.
func (s *Store) AppendUpdate(ctx context.Context, rec store.UpdateRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}
	data, err := json.Marshal(logEntry{
		ID:           rec.ID,
		ElapsedHours: rec.ElapsedHours,
		Event:        rec.Event,
		Category:     rec.Category,
		Loops:        rec.Loops,
		CreatedAt:    rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	key := s.logKey(rec.UserID, rec.SessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.logSize, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append update: %w", err)
	}
	return nil
}

// GetUpdates returns up to limit of the newest records, oldest first.
func (s *Store) GetUpdates(ctx context.Context, userID, sessionID string, limit int) ([]store.UpdateRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := s.client.LRange(ctx, s.logKey(userID, sessionID), -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	out := make([]store.UpdateRecord, 0, len(items))
	for _, item := range items {
		var e logEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode update: %w", err)
		}
		out = append(out, store.UpdateRecord{
			ID:           e.ID,
			UserID:       userID,
			SessionID:    sessionID,
			ElapsedHours: e.ElapsedHours,
			Event:        e.Event,
			Category:     e.Category,
			Loops:        e.Loops,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out, nil
}

// Healthy pings the server.
func (s *Store) Healthy(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
