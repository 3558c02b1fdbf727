package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ckbridge/config"
	"ckbridge/idempotency"
	"ckbridge/types"
)

// Store is the Redis backend for hash lists, the withdrawal journal, hash
// statuses and idempotency records.
type Store struct {
	pool *redis.Pool
	log  zerolog.Logger
}

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

// New builds a pooled store for the "host:port" address.
func New(redisAddr string, log zerolog.Logger) *Store {
	return &Store{
		pool: &redis.Pool{
			MaxIdle:     5,
			IdleTimeout: 4 * time.Minute,
			Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", redisAddr, timeoutDialOptions()...) },
		},
		log: log.With().Str("component", "redis").Logger(),
	}
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) conn(ctx context.Context) (redis.Conn, error) {
	return s.pool.GetContext(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("PING")
	return err
}

func hashesKey(asset string) string {
	return fmt.Sprintf("hashes:%s", asset)
}

// Append relies on RPUSH being atomic, so concurrent writers keep a single
// insertion order.
func (s *Store) Append(ctx context.Context, asset, hash string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Do("RPUSH", hashesKey(asset), hash); err != nil {
		s.log.Error().Err(err).Str("asset", asset).Msg("error Redis RPUSH")
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, asset string) ([]string, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	hashes, err := redis.Strings(conn.Do("LRANGE", hashesKey(asset), 0, -1))
	if err != nil && !errors.Is(err, redis.ErrNil) {
		s.log.Error().Err(err).Str("asset", asset).Msg("error Redis LRANGE")
		return nil, err
	}
	if hashes == nil {
		hashes = []string{}
	}
	return hashes, nil
}

func operationKey(status, id string) string {
	return fmt.Sprintf("withdrawop:%s:%s", status, id)
}

// Upsert stores op under its status. Multiple status sets must not contain
// one operation.
func (s *Store) Upsert(ctx context.Context, op *types.WithdrawalOperation) error {
	if op == nil {
		return errors.New("null object to store")
	}
	if op.Status == "" {
		return errors.New("withdrawal operation cannot have empty status")
	}
	setKey, ok := config.RedisStatusSets[op.Status]
	if !ok {
		return fmt.Errorf("no redis set for status %q", op.Status)
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	recordKey := operationKey(op.Status, op.ID)
	opJSON, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("cannot marshal withdrawal operation to JSON: %w", err)
	}

	if _, err := conn.Do("SET", recordKey, opJSON); err != nil {
		s.log.Error().Err(err).Msg("error Redis SET")
		return err
	}
	// also add the key to the corresponding SET
	if _, err := conn.Do("SADD", setKey, recordKey); err != nil {
		s.log.Error().Err(err).Msg("error Redis SADD")
		return err
	}
	return nil
}

// ChangeStatus moves op from the prevStatus set into the set for op.Status.
func (s *Store) ChangeStatus(ctx context.Context, op *types.WithdrawalOperation, prevStatus string) error {
	if op == nil {
		return errors.New("null object to store")
	}
	if op.ID == "" {
		return errors.New("cannot change status of an operation without id")
	}
	prevSet, ok := config.RedisStatusSets[prevStatus]
	if !ok {
		return fmt.Errorf("no redis set for status %q", prevStatus)
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	prevRecordKey := operationKey(prevStatus, op.ID)

	if _, err := conn.Do("SREM", prevSet, prevRecordKey); err != nil {
		conn.Close()
		s.log.Error().Err(err).Msg("error Redis SREM")
		return err
	}
	if _, err := conn.Do("DEL", prevRecordKey); err != nil {
		conn.Close()
		s.log.Error().Err(err).Msg("error Redis DEL")
		return err
	}
	conn.Close()

	return s.Upsert(ctx, op)
}

// FindByStatus scans the status set. Records that vanished between SSCAN
// and GET are skipped.
func (s *Store) FindByStatus(ctx context.Context, status string) ([]*types.WithdrawalOperation, error) {
	setKey, ok := config.RedisStatusSets[status]
	if !ok {
		return nil, errors.New("redis key not found for status")
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ops := make([]*types.WithdrawalOperation, 0)
	var cursor int64
	for {
		values, err := redis.Values(conn.Do("SSCAN", setKey, cursor))
		if err != nil {
			return nil, err
		}

		var opKeys []string
		if _, err := redis.Scan(values, &cursor, &opKeys); err != nil {
			return nil, err
		}

		for _, key := range opKeys {
			raw, err := redis.Bytes(conn.Do("GET", key))
			if errors.Is(err, redis.ErrNil) {
				continue
			}
			if err != nil {
				s.log.Error().Err(err).Str("key", key).Msg("error Redis GET")
				return nil, err
			}

			var op types.WithdrawalOperation
			if err := json.Unmarshal(raw, &op); err != nil {
				return nil, err
			}
			if op.Status == status {
				ops = append(ops, &op)
			}
		}

		if cursor == 0 {
			break
		}
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].TsCreated < ops[j].TsCreated })
	return ops, nil
}

func hashStatusKey(asset string) string {
	return fmt.Sprintf("hashstatus:%s", asset)
}

func (s *Store) SetHashStatus(ctx context.Context, asset string, status types.HashStatus) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if _, err := conn.Do("HSET", hashStatusKey(asset), status.Hash, raw); err != nil {
		s.log.Error().Err(err).Str("asset", asset).Msg("error Redis HSET")
		return err
	}
	return nil
}

func (s *Store) HashStatuses(ctx context.Context, asset string) ([]types.HashStatus, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	values, err := redis.StringMap(conn.Do("HGETALL", hashStatusKey(asset)))
	if err != nil {
		return nil, err
	}
	out := make([]types.HashStatus, 0, len(values))
	for _, v := range values {
		var st types.HashStatus
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

func idempotencyKey(key string) string {
	return "idem:" + key
}

// Get implements idempotency.Store. Expiry is left to Redis.
func (s *Store) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", idempotencyKey(key)))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec idempotency.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// releaseScript deletes the key only while it still holds a reservation.
var releaseScript = redis.NewScript(1, `
local v = redis.call('GET', KEYS[1])
if v and cjson.decode(v).statusCode == 0 then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

func (s *Store) Reserve(ctx context.Context, key string, until time.Time) (bool, error) {
	ttl := time.Until(until).Milliseconds()
	if ttl <= 0 {
		return false, errors.New("reservation already expired")
	}
	raw, err := json.Marshal(idempotency.Record{CreatedAt: time.Now(), ExpiresAt: until})
	if err != nil {
		return false, err
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	_, err = redis.String(conn.Do("SET", idempotencyKey(key), raw, "NX", "PX", ttl))
	if errors.Is(err, redis.ErrNil) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) Release(ctx context.Context, key string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = releaseScript.Do(conn, idempotencyKey(key))
	return err
}

func (s *Store) Save(ctx context.Context, key string, record idempotency.Record) error {
	ttl := time.Until(record.ExpiresAt).Milliseconds()
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("SET", idempotencyKey(key), raw, "PX", ttl)
	return err
}
