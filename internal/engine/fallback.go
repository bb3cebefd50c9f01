package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
)

// Номер стадии fallback-проверки в трейсе прогона.
const fallbackStep = 1

// requiredFields — шесть идентифицирующих полей транзакции.
// transaction_id и amount в Go-структуре присутствуют всегда
// (id генерируется на входе), проверяем содержательные строковые поля.
var requiredFields = []string{"card_type", "user_location", "merchant", "merchant_location"}

// FallbackResult — исход проверки. Отсутствие данных — нормальный
// представимый исход, а не ошибка.
type FallbackResult struct {
	Triggered bool
	Reason    string
}

// FallbackGate решает, нужно ли замкнуть пайплайн на эскалацию до глубокого
// анализа: неполные данные или недостаточная уверенность.
type FallbackGate struct {
	confidenceThreshold float64
	journal             *journal.Journal
}

func NewFallbackGate(confidenceThreshold float64, jrnl *journal.Journal) *FallbackGate {
	return &FallbackGate{confidenceThreshold: confidenceThreshold, journal: jrnl}
}

// Check никогда не возвращает ошибку. Шаг трейса пишется только при
// срабатывании: непротриггеренный гейт — это тишина в журнале.
func (g *FallbackGate) Check(ctx context.Context, txn domain.Transaction, confidence float64) FallbackResult {
	var missing []string
	for _, field := range requiredFields {
		if isMissing(fieldValue(txn, field)) {
			missing = append(missing, field)
		}
	}

	result := FallbackResult{Reason: "All checks passed"}
	switch {
	case len(missing) > 0:
		result.Triggered = true
		result.Reason = "Missing required fields: " + strings.Join(missing, ", ")
	case confidence < g.confidenceThreshold:
		result.Triggered = true
		result.Reason = fmt.Sprintf("Model confidence too low: %.2f < threshold %.2f", confidence, g.confidenceThreshold)
	}

	if result.Triggered {
		g.journal.Record(ctx, domain.TraceStep{
			TransactionID: txn.TransactionID,
			Step:          fallbackStep,
			Component:     domain.ComponentFallback,
			InputData: map[string]any{
				"fields_checked": requiredFields,
				"confidence":     confidence,
			},
			Description: fmt.Sprintf("Initial fallback triggered: %s", result.Reason),
			Confidence:  confidence,
		})
	}

	return result
}

func fieldValue(txn domain.Transaction, field string) string {
	switch field {
	case "card_type":
		return txn.CardType
	case "user_location":
		return txn.UserLocation
	case "merchant":
		return txn.Merchant
	case "merchant_location":
		return txn.MerchantLocation
	}
	return ""
}

func isMissing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, domain.NotApplicable)
}
