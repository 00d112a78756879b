package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"pollwatch/internal/results"
	"pollwatch/pkg/platform/sentinel"
)

// DefaultRedisKey is the hash holding one JSON-encoded record per unit.
const DefaultRedisKey = "pollwatch:results"

// putIfNewer writes ARGV[2] into field ARGV[1] unless the stored record already
// carries a version >= ARGV[3]. Returns 1 on write, 0 when the write is stale.
var putIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur then
	local stored = cjson.decode(cur)['version']
	if stored and tonumber(stored) >= tonumber(ARGV[3]) then
		return 0
	end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// RedisStore keeps current records as fields of a single Redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore constructs a Redis-backed result store. An empty key uses
// DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Get(ctx context.Context, unitID string) (*results.ResultRecord, error) {
	raw, err := s.client.HGet(ctx, s.key, unitID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("result for unit %s: %w", unitID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get result record: %w", err)
	}
	var rec results.ResultRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode result record: %w", err)
	}
	return &rec, nil
}

// Put stores rec. As with the Postgres store, a write whose version is not
// newer than the stored one is refused with sentinel.ErrInvalidState, so
// replicas sharing the hash cannot regress a unit.
func (s *RedisStore) Put(ctx context.Context, rec *results.ResultRecord) error {
	if rec == nil {
		return fmt.Errorf("result record is required")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode result record: %w", err)
	}
	written, err := putIfNewer.Run(ctx, s.client, []string{s.key}, rec.UnitID, raw, rec.Version).Int()
	if err != nil {
		return fmt.Errorf("put result record: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("result for unit %s at version %d is stale: %w", rec.UnitID, rec.Version, sentinel.ErrInvalidState)
	}
	return nil
}

// List reads the whole hash and filters client side; the hash is bounded by
// the number of registered units.
func (s *RedisStore) List(ctx context.Context, f results.Filter) ([]*results.ResultRecord, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list result records: %w", err)
	}
	out := make([]*results.ResultRecord, 0, len(all))
	for unitID, raw := range all {
		var rec results.ResultRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode result record %s: %w", unitID, err)
		}
		if f.Matches(&rec) {
			out = append(out, &rec)
		}
	}
	slices.SortFunc(out, func(a, b *results.ResultRecord) int {
		return strings.Compare(a.UnitID, b.UnitID)
	})
	return out, nil
}
