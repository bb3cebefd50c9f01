package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
	"golang.org/x/time/rate"
)

// ReliableScorer оборачивает внешний классификатор контуром надежности:
// rate limiter, Circuit Breaker и таймаут на вызов. Скоринг — единственное
// место пайплайна (кроме нарратива), пересекающее сетевую границу; зависший
// бэкенд модели не должен тормозить прогоны, поэтому при выбитом предохранителе
// ошибка возвращается мгновенно, а вызывающая сторона уходит на дефолтный скор.
type ReliableScorer struct {
	next    Scorer
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration

	// Хук для метрики состояния предохранителя, nil допустим
	onStateChange func(open bool)
}

func NewReliableScorer(next Scorer, cfg infra.ScorerConfig, onStateChange func(open bool)) *ReliableScorer {
	rs := &ReliableScorer{
		next:          next,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		timeout:       cfg.Timeout,
		onStateChange: onStateChange,
	}

	rs.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "risk-scorer",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if rs.onStateChange != nil {
				rs.onStateChange(to == gobreaker.StateOpen)
			}
		},
	})
	return rs
}

func (w *ReliableScorer) Predict(ctx context.Context, features Features) (float64, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("scorer rate limit: %w", err)
	}

	// 2. Circuit Breaker + таймаут
	result, err := w.cb.Execute(func() (interface{}, error) {
		tCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		return w.next.Predict(tCtx, features)
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}
