package store

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding the snapshot unless the url names another with ?key=.
const DefaultRedisKey = "statesync:state"

type redisSnapshotter struct {
	rdb *redis.Client
	key string
}

// OpenRedis opens a snapshot hash on the Redis server at rawURL.
func OpenRedis(ctx context.Context, rawURL string) (Snapshotter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url failed")
	}
	q := u.Query()
	key := q.Get("key")
	if key == "" {
		key = DefaultRedisKey
	}
	q.Del("key")
	u.RawQuery = q.Encode()
	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url failed")
	}
	rdb := redis.NewClient(opts)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis failed")
	}
	return &redisSnapshotter{rdb: rdb, key: key}, nil
}

func (s *redisSnapshotter) Save(ctx context.Context, state map[string]any) error {
	fields := make(map[string]any, len(state))
	for k, v := range state {
		raw, err := encodeValue(v)
		if err != nil {
			return err
		}
		fields[k] = raw
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	return errors.Wrap(err, "save redis snapshot failed")
}

func (s *redisSnapshotter) Load(ctx context.Context) (map[string]any, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load redis snapshot failed")
	}
	state := make(map[string]any, len(fields))
	for k, raw := range fields {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "key %q", k)
		}
		state[k] = v
	}
	return state, nil
}

func (s *redisSnapshotter) Close() error {
	return s.rdb.Close()
}
