package journal

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
)

// RedisStore — бэкенд журнала на Redis List: один список на transaction_id.
// RPUSH атомарен и сохраняет порядок, LRANGE отдает записи в порядке записи,
// так что контракт append-only журнала выполняется без блокировок.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Append(ctx context.Context, transactionID string, record []byte) error {
	if err := s.rdb.RPush(ctx, infra.GetTraceKey(transactionID), record).Err(); err != nil {
		return fmt.Errorf("journal: redis rpush: %w", err)
	}
	return nil
}

func (s *RedisStore) ReadAll(ctx context.Context, transactionID string) ([][]byte, error) {
	lines, err := s.rdb.LRange(ctx, infra.GetTraceKey(transactionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("journal: redis lrange: %w", err)
	}

	records := make([][]byte, 0, len(lines))
	for _, l := range lines {
		records = append(records, []byte(l))
	}
	return records, nil
}
