package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/types"
)

// RedisSource reads ticks from one sorted set per kind. Members are
// "<timestamp>:<rate>" scored by timestamp, so equal rates at different
// times stay distinct members.
type RedisSource struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to the server described by cfg.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, classify(err, "redis")
	}

	log.Info("redis source connected", "addr", cfg.Addr, "prefix", cfg.KeyPrefix)
	return NewRedisFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisFromClient wraps an existing client. The source takes ownership
// of client.
func NewRedisFromClient(client *redis.Client, prefix string) *RedisSource {
	return &RedisSource{client: client, prefix: prefix}
}

// Name returns "redis".
func (s *RedisSource) Name() string {
	return "redis"
}

// Key returns the sorted set key of kind.
func (s *RedisSource) Key(kind types.Kind) string {
	return s.prefix + ":" + kind.String()
}

// FetchTicksSince implements Source.
func (s *RedisSource) FetchTicksSince(ctx context.Context, kind types.Kind, cursor *int64) ([]types.Tick, error) {
	members, err := s.client.ZRangeByScore(ctx, s.Key(kind), scoreRange(cursor)).Result()
	if err != nil {
		return nil, classify(err, s.Name())
	}

	ticks := make([]types.Tick, 0, len(members))
	for _, m := range members {
		t, err := parseMember(m)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}

	log.Debug("fetched ticks", "kind", kind, "count", len(ticks))
	return ticks, nil
}

// Append stores ticks for kind. Re-adding an existing tick is a no-op.
func (s *RedisSource) Append(ctx context.Context, kind types.Kind, ticks ...types.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	zs := make([]redis.Z, len(ticks))
	for i, t := range ticks {
		zs[i] = redis.Z{
			Score:  float64(t.Timestamp),
			Member: formatMember(t),
		}
	}

	if err := s.client.ZAdd(ctx, s.Key(kind), zs...).Err(); err != nil {
		return classify(err, s.Name())
	}
	return nil
}

// Ping verifies the server is reachable.
func (s *RedisSource) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx).Err(), s.Name())
}

// Close closes the client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}

// scoreRange returns the score range strictly after cursor.
func scoreRange(cursor *int64) *redis.ZRangeBy {
	lo := "-inf"
	if cursor != nil {
		lo = "(" + strconv.FormatInt(*cursor, 10)
	}
	return &redis.ZRangeBy{Min: lo, Max: "+inf"}
}

func formatMember(t types.Tick) string {
	return fmt.Sprintf("%d:%d", t.Timestamp, t.Rate)
}

func parseMember(m string) (types.Tick, error) {
	tsPart, ratePart, ok := strings.Cut(m, ":")
	if !ok {
		return types.Tick{}, &errors.MalformedInputError{
			Index:  -1,
			Reason: fmt.Sprintf("member %q is not <timestamp>:<rate>", m),
		}
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return types.Tick{}, &errors.MalformedInputError{
			Index:  -1,
			Reason: fmt.Sprintf("member %q has a non-numeric timestamp", m),
		}
	}

	rate, err := parseRate(ts, ratePart)
	if err != nil {
		return types.Tick{}, err
	}
	return types.Tick{Timestamp: ts, Rate: rate}, nil
}
