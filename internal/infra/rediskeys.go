package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "fds"
)

// GetTraceKey — ключ списка шагов трейса конкретной транзакции.
// Один Redis List на transaction_id, RPUSH сохраняет порядок записи.
func GetTraceKey(transactionID string) string {
	return fmt.Sprintf("%s:trace:%s", RedisNamespace, transactionID)
}
