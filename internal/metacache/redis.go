package metacache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"spoticord/internal/core"
)

// RedisStore keeps tracks and artists in two hashes of JSON documents.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) tracksKey() string  { return s.prefix + ":cache:tracks" }
func (s *RedisStore) artistsKey() string { return s.prefix + ":cache:artists" }

func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := newSnapshot()

	tracks, err := s.client.HGetAll(ctx, s.tracksKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cached tracks: %w", err)
	}
	for id, raw := range tracks {
		var t core.TrackInfo
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("corrupt cached track %s: %w", id, err)
		}
		snap.Tracks[id] = t
	}

	artists, err := s.client.HGetAll(ctx, s.artistsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cached artists: %w", err)
	}
	for id, raw := range artists {
		var a core.ArtistInfo
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("corrupt cached artist %s: %w", id, err)
		}
		snap.Artists[id] = a
	}

	return snap, nil
}

// Save replaces both hashes in one transaction.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	trackFields := make(map[string]any, len(snap.Tracks))
	for id, t := range snap.Tracks {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode track %s: %w", id, err)
		}
		trackFields[id] = string(b)
	}

	artistFields := make(map[string]any, len(snap.Artists))
	for id, a := range snap.Artists {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode artist %s: %w", id, err)
		}
		artistFields[id] = string(b)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.tracksKey(), s.artistsKey())
		if len(trackFields) > 0 {
			pipe.HSet(ctx, s.tracksKey(), trackFields)
		}
		if len(artistFields) > 0 {
			pipe.HSet(ctx, s.artistsKey(), artistFields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save cache to redis: %w", err)
	}
	return nil
}
