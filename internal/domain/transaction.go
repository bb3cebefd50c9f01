package domain

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// Sentinel-значение "поле не применимо", приравнивается к отсутствию данных.
const NotApplicable = "N/A"

// Transaction — входная платежная операция. После старта прогона неизменяема,
// единственное допустимое обогащение — причина раннего эскалирования
// (InitialFallbackReason), проставляемая до глубокого анализа.
type Transaction struct {
	TransactionID    string  `json:"transaction_id"`
	Amount           float64 `json:"amount"`
	CardType         string  `json:"card_type"`
	Merchant         string  `json:"merchant"`
	MerchantLocation string  `json:"merchant_location"`
	UserLocation     string  `json:"user_location"`

	// Причина раннего эскалирования (если сработал Fallback Gate)
	InitialFallbackReason string `json:"initial_fallback_reason,omitempty"`
}

// EnsureID проставляет UUID, если идентификатор не пришел от клиента.
// Возвращает true, если идентификатор был сгенерирован.
func (t *Transaction) EnsureID() bool {
	if t.TransactionID != "" {
		return false
	}
	t.TransactionID = uuid.New().String()
	return true
}

// Normalized возвращает копию с приведенными к нижнему регистру строковыми
// полями. Все проверки сигналов и фактов политик работают со строками
// case-insensitive, поэтому нормализуем один раз на входе в пайплайн.
func (t Transaction) Normalized() Transaction {
	t.CardType = strings.ToLower(strings.TrimSpace(t.CardType))
	t.Merchant = strings.ToLower(strings.TrimSpace(t.Merchant))
	t.MerchantLocation = strings.ToLower(strings.TrimSpace(t.MerchantLocation))
	t.UserLocation = strings.ToLower(strings.TrimSpace(t.UserLocation))
	return t
}

// Flags — три независимых детерминированных сигнала. Вычисляются один раз
// за прогон и после этого не мутируются.
type Flags struct {
	Amount   bool `json:"amount"`
	Location bool `json:"location"`
	Merchant bool `json:"merchant"`
}

// Статусы финального решения. Политика может вернуть произвольный action,
// поэтому DecisionResult.Status — строка, а не закрытый enum.
const (
	StatusSafe      = "safe"
	StatusFraud     = "fraud"
	StatusEscalated = "escalated"
)

// DecisionResult — итог одного прогона пайплайна. Считается ровно один раз,
// сразу логируется терминальным шагом трейса и отдается вызывающему.
type DecisionResult struct {
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"` // округлено до 2 знаков
	TransactionID string  `json:"trace_id"`
	Narrative     string  `json:"narrative"`
}

// Round2 — каноническое округление confidence для внешнего представления.
// Внутри пайплайна значения не округляются, только на границе вывода.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
