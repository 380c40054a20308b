package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis"

	"koipond/internal/model"
)

const DefaultRedisKey = "koipond:leaderboard"

// RedisBackend keeps each record as JSON in a hash and the species' best
// fitness in a sorted set, both under Key.
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(addr, key string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	if _, err := client.Ping().Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisBackendFromClient(client, key), nil
}

func NewRedisBackendFromClient(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key}
}

func (b *RedisBackend) recordsKey() string { return b.key + ":records" }
func (b *RedisBackend) fitnessKey() string { return b.key + ":fitness" }

func (b *RedisBackend) Load(context.Context) ([]model.SpeciesRecord, error) {
	raw, err := b.client.HGetAll(b.recordsKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.SpeciesRecord, 0, len(raw))
	for field, payload := range raw {
		var rec model.SpeciesRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode species %s: %w", field, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *RedisBackend) Put(_ context.Context, record model.SpeciesRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	member := strconv.Itoa(record.SpeciesID)
	_, err = b.client.TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.HSet(b.recordsKey(), member, payload)
		pipe.ZAdd(b.fitnessKey(), redis.Z{Score: record.HighestFitness, Member: member})
		return nil
	})
	return err
}

func (b *RedisBackend) Clear(context.Context) error {
	return b.client.Del(b.recordsKey(), b.fitnessKey()).Err()
}

// TopSpeciesIDs reads the n best species ids straight from the sorted set.
func (b *RedisBackend) TopSpeciesIDs(n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := b.client.ZRevRange(b.fitnessKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("species member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
