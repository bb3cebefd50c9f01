package journal

/*
Пакет journal реализует трейс-журнал пайплайна: append-only последовательность
шагов на каждый transaction_id. Журнал — единственный источник правды и для
живого мониторинга, и для последующего аудита/реплея решения.

Контракт хранилища минимален: упорядоченное key-partitioned append-only
хранилище с атомарной записью одной записи. Реализации: файл-на-транзакцию
(JSONL), Redis List, таблица PostgreSQL.
*/

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"go.uber.org/zap"
)

// Store определяет, куда физически пишутся записи журнала.
// Записи передаются сырыми JSON-строками: так читатель может пережить
// частично битые персистентные данные, не теряя остальные шаги.
type Store interface {
	// Append атомарно дописывает одну запись в журнал транзакции
	Append(ctx context.Context, transactionID string, record []byte) error
	// ReadAll возвращает все записи журнала в порядке записи
	ReadAll(ctx context.Context, transactionID string) ([][]byte, error)
}

// Journal — писатель журнала. Ошибка записи логируется и считается в метрике,
// но никогда не прерывает пайплайн: доступность решения важнее гарантии трейса.
type Journal struct {
	store     Store
	logger    *zap.Logger
	writeErrs prometheus.Counter // nil допустим
}

func NewJournal(store Store, logger *zap.Logger, writeErrs prometheus.Counter) *Journal {
	return &Journal{
		store:     store,
		logger:    logger.Named("journal"),
		writeErrs: writeErrs,
	}
}

// Record фиксирует один шаг. Таймстемп проставляется, если пустой,
// confidence округляется до 2 знаков на границе записи.
func (j *Journal) Record(ctx context.Context, step domain.TraceStep) {
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	step.Confidence = domain.Round2(step.Confidence)
	if step.FinalDecisionConfidence != nil {
		rounded := domain.Round2(*step.FinalDecisionConfidence)
		step.FinalDecisionConfidence = &rounded
	}

	raw, err := json.Marshal(step)
	if err != nil {
		// Marshal падает только на несериализуемом InputData
		j.fail(step, err)
		return
	}

	if err := j.store.Append(ctx, step.TransactionID, raw); err != nil {
		j.fail(step, err)
	}
}

func (j *Journal) fail(step domain.TraceStep, err error) {
	if j.writeErrs != nil {
		j.writeErrs.Inc()
	}
	j.logger.Error("trace step write failed",
		zap.String("transaction_id", step.TransactionID),
		zap.Int("step", step.Step),
		zap.String("component", step.Component),
		zap.Error(err),
	)
}
