package engine

import (
	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
)

// Resolver детерминированно сводит исходы стадий в одно финальное решение.
// Каскад упорядочен: первая применимая ветка выигрывает, дальше не смотрим.
// Порядок — это приоритет достоверности сигнала: политики и "подписи" фрода
// (рискованный мерчант, виртуальная карта через границу) перекрывают
// возможно-нейтральный модельный скор; чистый скор — последний довод.
type Resolver struct {
	thresholds infra.ThresholdsConfig
}

func NewResolver(thresholds infra.ThresholdsConfig) *Resolver {
	return &Resolver{thresholds: thresholds}
}

// Resolve возвращает статус и неокругленную уверенность.
// Округление до 2 знаков происходит на границе вывода, не здесь.
func (r *Resolver) Resolve(
	txn domain.Transaction,
	fallback FallbackResult,
	flags domain.Flags,
	policyResult domain.PolicyResult,
	score domain.RiskScore,
) (string, float64) {
	switch {
	// 1. Ранняя эскалация: данные неполны, глубокий анализ не выполнялся
	case fallback.Triggered:
		return domain.StatusEscalated, 0.1

	// 2. Нарушение политики: статус и уверенность диктует правило
	case policyResult.Violated:
		return policyResult.Action, policyResult.Confidence

	// 3. Рискованный мерчант
	case flags.Merchant:
		return domain.StatusFraud, maxF(score.Value, 0.95)

	// 4. Виртуальная карта + граница + превышение лимита
	case flags.Location && txn.CardType == "virtual" && txn.Amount > r.thresholds.VirtualCardLimit:
		return domain.StatusFraud, maxF(score.Value, 0.98)

	// 5. Битые метаданные мерчанта
	case txn.Merchant == "" || txn.MerchantLocation == "":
		return domain.StatusFraud, maxF(score.Value, 0.90)

	// 6. High-value сумма
	case txn.Amount > r.thresholds.HighValue:
		return domain.StatusEscalated, maxF(score.Value, 0.80)

	// 7. Кросс-граница, не пойманная более сильными ветками
	case flags.Location:
		return domain.StatusEscalated, maxF(score.Value, 0.65)
	}

	// 8. Детерминированных сигналов нет — решает чистый модельный скор
	switch {
	case score.Value > r.thresholds.Confidence:
		return domain.StatusFraud, score.Value
	case score.Value >= r.thresholds.Fallback:
		return domain.StatusEscalated, score.Value
	}
	return domain.StatusSafe, score.Value
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
