package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"plus-ev-alerts/internal/config"
	"plus-ev-alerts/internal/engine"
	"plus-ev-alerts/internal/odds"
)

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisArchive keeps the recommendation archive in one redis hash keyed by
// opportunity id. HSETNX makes saves insert-if-absent, so concurrent runs
// never overwrite a first-seen row.
type RedisArchive struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisArchive stores the archive under "<prefix>:recommended_bets".
func NewRedisArchive(rdb redis.UniversalClient, prefix string) *RedisArchive {
	if prefix == "" {
		prefix = "evwatcher"
	}
	return &RedisArchive{rdb: rdb, key: prefix + ":recommended_bets"}
}

// LoadArchive returns every archived opportunity in first-recommended order.
func (r *RedisArchive) LoadArchive(ctx context.Context) ([]odds.Opportunity, error) {
	bets, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]odds.Opportunity, len(bets))
	for i, b := range bets {
		out[i] = b.Opportunity
	}
	return out, nil
}

// SaveArchive writes rows whose id is not yet present and reports how many were new.
func (r *RedisArchive) SaveArchive(ctx context.Context, rows []odds.Opportunity, at time.Time) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cmds := make([]*redis.BoolCmd, 0, len(rows))
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, o := range rows {
			payload, err := encodeArchiveEntry(RecommendedBet{Opportunity: o, RecommendedAt: at.UTC()})
			if err != nil {
				return err
			}
			cmds = append(cmds, pipe.HSetNX(ctx, r.key, o.ID, payload))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: save archive: %w", err)
	}
	inserted := 0
	for _, cmd := range cmds {
		if cmd.Val() {
			inserted++
		}
	}
	return inserted, nil
}

// ListRecentArchive returns the most recently recommended bets.
func (r *RedisArchive) ListRecentArchive(ctx context.Context, limit int) ([]RecommendedBet, error) {
	bets, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bets, func(i, j int) bool {
		return bets[i].RecommendedAt.After(bets[j].RecommendedAt)
	})
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

func (r *RedisArchive) all(ctx context.Context) ([]RecommendedBet, error) {
	entries, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load archive: %w", err)
	}
	return decodeArchiveEntries(entries)
}

func encodeArchiveEntry(b RecommendedBet) (string, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode archive entry %s: %w", b.ID, err)
	}
	return string(payload), nil
}

// decodeArchiveEntries decodes hash fields into bets ordered by recommendation
// time then id. An undecodable entry, or one whose body disagrees with its
// field, is reported as archive corruption.
func decodeArchiveEntries(entries map[string]string) ([]RecommendedBet, error) {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bets := make([]RecommendedBet, 0, len(entries))
	for i, id := range ids {
		var b RecommendedBet
		if err := json.Unmarshal([]byte(entries[id]), &b); err != nil {
			return nil, &engine.ArchiveCorruptionError{Row: i, ID: id, Reason: "undecodable redis entry: " + err.Error()}
		}
		if b.ID != id {
			return nil, &engine.ArchiveCorruptionError{Row: i, ID: id, Reason: "entry id does not match hash field"}
		}
		bets = append(bets, b)
	}
	sort.SliceStable(bets, func(i, j int) bool {
		return bets[i].RecommendedAt.Before(bets[j].RecommendedAt)
	})
	return bets, nil
}

var _ ArchiveStore = (*RedisArchive)(nil)
