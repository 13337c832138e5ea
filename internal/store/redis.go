package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/smallwat3r/secretlink/internal/domain"
)

var _ Store = (*RedisStore)(nil)

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 10

// RedisStore keeps each record as JSON under secret:<id> with a native TTL,
// and failed password guesses under secret:attempts:<id> with the same TTL.
type RedisStore struct {
	rdb  *redis.Client
	opts Options
}

func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
	return &RedisStore{rdb: rdb, opts: opts.withDefaults()}
}

func (r *RedisStore) Create(ctx context.Context, env domain.Envelope) (domain.Record, error) {
	for range maxIDAttempts {
		rec, err := r.opts.newRecord(env)
		if err != nil {
			return domain.Record{}, err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return domain.Record{}, fmt.Errorf("encode record: %w", err)
		}
		ok, err := r.rdb.SetNX(ctx, secretKey(rec.ID), data, r.opts.TTL).Result()
		if err != nil {
			return domain.Record{}, transient("create", err)
		}
		if ok {
			return rec, nil
		}
	}
	return domain.Record{}, errIDCollision
}

// FetchAndDelete relies on GETDEL so that the read and the removal are a
// single server-side command.
func (r *RedisStore) FetchAndDelete(ctx context.Context, id string) (domain.Record, error) {
	data, err := r.rdb.GetDel(ctx, secretKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Record{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Record{}, transient("fetch", err)
	}
	r.clearAttempts(ctx, id)

	return decodeRecord(data)
}

// clearAttempts drops the counter of a record that is already gone. A
// leftover counter expires with the record's TTL, so failure only logs.
func (r *RedisStore) clearAttempts(ctx context.Context, id string) {
	if err := r.rdb.Del(ctx, attemptsKey(id)).Err(); err != nil {
		log.Debug().Err(err).Msg("failed to clear attempts counter")
	}
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, secretKey(id), attemptsKey(id)).Err(); err != nil {
		return transient("delete", err)
	}
	return nil
}

// Claim watches both the record and its attempts counter so that a
// concurrent claim or guess forces a retry against fresh state.
func (r *RedisStore) Claim(ctx context.Context, id string, match MatchFunc) (domain.Record, error) {
	key := secretKey(id)
	att := attemptsKey(id)

	var claimed domain.Record
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return err
		}

		used, err := tx.Get(ctx, att).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		attempts, remove, outcome := decideClaim(rec, used, r.opts.MaxAttempts, match)
		if errors.Is(outcome, domain.ErrPasswordRequired) {
			return outcome
		}

		ttl := r.opts.TTL
		if remaining, err := tx.PTTL(ctx, key).Result(); err == nil && remaining > 0 {
			ttl = remaining
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if remove {
				pipe.Del(ctx, key, att)
			} else {
				pipe.Set(ctx, att, attempts, ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if outcome == nil {
			claimed = rec
		}
		return outcome
	}

	for range maxTxRetries {
		err := r.rdb.Watch(ctx, txf, key, att)
		switch {
		case err == nil:
			return claimed, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case isOutcome(err):
			return domain.Record{}, err
		case errors.Is(err, errCorruptRecord):
			return domain.Record{}, err
		default:
			return domain.Record{}, transient("claim", err)
		}
	}
	return domain.Record{}, transient("claim", redis.TxFailedErr)
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

var errCorruptRecord = errors.New("corrupt secret record")

func decodeRecord(data []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Record{}, fmt.Errorf("%w: %w", errCorruptRecord, err)
	}
	return rec, nil
}

// RedisOptions carries the pool settings used to build a client from a URL.
type RedisOptions struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// NewRedisClient parses the URL, applies pool settings and verifies the
// connection.
func NewRedisClient(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	opt, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = o.PoolSize
	opt.MinIdleConns = o.MinIdleConns
	opt.DialTimeout = o.DialTimeout
	opt.ReadTimeout = o.ReadTimeout
	opt.WriteTimeout = o.WriteTimeout
	opt.PoolTimeout = o.PoolTimeout

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

func secretKey(id string) string   { return "secret:" + id }
func attemptsKey(id string) string { return "secret:attempts:" + id }
