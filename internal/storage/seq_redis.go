package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"shelterchat/backend/internal/apperr"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxDuplicateRetries = 3

// incrExisting increments the counter only if it exists, so a lost key is
// reported as redis.Nil instead of silently restarting at 1.
var incrExisting = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return redis.call("INCR", KEYS[1])
end
return false
`)

// raiseTo moves the counter up to ARGV[1] and never down.
var raiseTo = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local want = tonumber(ARGV[1])
if want > cur then
  redis.call("SET", KEYS[1], ARGV[1])
  return want
end
return cur
`)

// SeqKey is the Redis key of a room's sequence counter.
func SeqKey(roomID int64) string {
	return fmt.Sprintf("chat:room:%d:seq", roomID)
}

// RedisAllocator issues seqs with an atomic INCR per room. A missing
// counter is seeded from the durable log before it is incremented.
type RedisAllocator struct {
	rdb    redis.UniversalClient
	store  MessageStore
	logger *zap.Logger
}

func NewRedisAllocator(rdb redis.UniversalClient, store MessageStore, logger *zap.Logger) *RedisAllocator {
	return &RedisAllocator{rdb: rdb, store: store, logger: logger}
}

// Allocate retries with a fresh seq when bind hits a taken (room, seq),
// which only happens after the counter was lost mid-flight. A seq whose bind
// fails otherwise is never handed back: LatestSeq may already have reported
// it to a reader, so it stays a gap.
func (a *RedisAllocator) Allocate(ctx context.Context, roomID int64, bind func(seq int64) error) (int64, error) {
	for attempt := 0; ; attempt++ {
		seq, err := a.next(ctx, roomID)
		if err != nil {
			return 0, err
		}
		err = bind(seq)
		if err == nil {
			return seq, nil
		}
		if !errors.Is(err, apperr.ErrDuplicateSeq) {
			a.logger.Warn("seq left unused", zap.Int64("room_id", roomID), zap.Int64("seq", seq), zap.Error(err))
			return 0, err
		}
		if attempt >= maxDuplicateRetries {
			return 0, err
		}
		a.logger.Warn("sequence already taken, reallocating",
			zap.Int64("room_id", roomID), zap.Int64("seq", seq), zap.Int("attempt", attempt+1))
	}
}

func (a *RedisAllocator) next(ctx context.Context, roomID int64) (int64, error) {
	key := SeqKey(roomID)
	for i := 0; i < 2; i++ {
		seq, err := incrExisting.Run(ctx, a.rdb, []string{key}).Int64()
		if err == nil {
			return seq, nil
		}
		if !errors.Is(err, redis.Nil) {
			return 0, apperr.Infra("increment seq", err)
		}
		if err := a.seed(ctx, roomID); err != nil {
			return 0, err
		}
	}
	return 0, apperr.Infra("increment seq", fmt.Errorf("counter %s missing after seeding", key))
}

func (a *RedisAllocator) seed(ctx context.Context, roomID int64) error {
	latest, err := a.store.LatestSeq(ctx, roomID)
	if err != nil {
		return err
	}
	if err := a.rdb.SetNX(ctx, SeqKey(roomID), latest, 0).Err(); err != nil {
		return apperr.Infra("seed seq", err)
	}
	a.logger.Info("seeded sequence counter", zap.Int64("room_id", roomID), zap.Int64("seq", latest))
	return nil
}

func (a *RedisAllocator) LatestSeq(ctx context.Context, roomID int64) (int64, error) {
	seq, err := a.rdb.Get(ctx, SeqKey(roomID)).Int64()
	if errors.Is(err, redis.Nil) {
		return a.store.LatestSeq(ctx, roomID)
	}
	if err != nil {
		return 0, apperr.Infra("latest seq", err)
	}
	return seq, nil
}

// LatestSeqForRooms reads every counter with one MGET. Rooms whose counter
// is missing are answered by one batched query against the durable log.
func (a *RedisAllocator) LatestSeqForRooms(ctx context.Context, roomIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(roomIDs))
	for i, id := range roomIDs {
		keys[i] = SeqKey(id)
	}
	values, err := a.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.Infra("latest seq for rooms", err)
	}

	var missing []int64
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, roomIDs[i])
			continue
		}
		seq, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			missing = append(missing, roomIDs[i])
			continue
		}
		out[roomIDs[i]] = seq
	}

	if len(missing) > 0 {
		found, err := a.store.LatestSeqForRooms(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			out[id] = found[id]
		}
	}
	return out, nil
}

// Reseed raises a room's counter to the highest seq in the durable log and
// returns the resulting counter value.
func (a *RedisAllocator) Reseed(ctx context.Context, roomID int64) (int64, error) {
	latest, err := a.store.LatestSeq(ctx, roomID)
	if err != nil {
		return 0, err
	}
	seq, err := raiseTo.Run(ctx, a.rdb, []string{SeqKey(roomID)}, latest).Int64()
	if err != nil {
		return 0, apperr.Infra("reseed seq", err)
	}
	return seq, nil
}

// Forget drops a deleted room's counter.
func (a *RedisAllocator) Forget(ctx context.Context, roomID int64) error {
	if err := a.rdb.Del(ctx, SeqKey(roomID)).Err(); err != nil {
		return apperr.Infra("forget seq", err)
	}
	return nil
}
