package domain

// PolicyRule — внешне сконфигурированное правило комплаенса.
// Набор правил загружается один раз на старте процесса и дальше read-only.
type PolicyRule struct {
	ID         string  `json:"-"`          // ключ в документе правил
	Condition  string  `json:"condition"`  // выражение закрытой грамматики, e.g. "amount > 100000"
	Action     string  `json:"action"`     // что делать при срабатывании, default "flag"
	Reason     string  `json:"reason"`     // человекочитаемое объяснение
	Confidence float64 `json:"confidence"` // [0,1], default 0.9
}

// PolicyResult — итог прогона транзакции через движок правил.
// На одну оценку — максимум одно "то самое" нарушение (first match wins).
type PolicyResult struct {
	Violated   bool    `json:"violated"`
	PolicyID   string  `json:"policy_id,omitempty"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action"`
}

// NoViolation — нейтральный результат: ни одно правило не совпало.
func NoViolation() PolicyResult {
	return PolicyResult{
		Violated:   false,
		Reason:     "No policy violation detected.",
		Confidence: 0.0,
		Action:     StatusSafe,
	}
}

// ScoreOrigin — происхождение риск-оценки.
type ScoreOrigin string

const (
	ScoreFromModel    ScoreOrigin = "model"    // оценка пришла от классификатора
	ScoreFromFallback ScoreOrigin = "fallback" // бэкенд недоступен, нейтральный дефолт
)

// RiskScore — вероятностная оценка [0,1] плюс признак происхождения.
// Живет только в рамках прогона, персистится лишь в составе шага трейса.
type RiskScore struct {
	Value  float64     `json:"value"`
	Origin ScoreOrigin `json:"origin"`
}

// DefaultRiskScore — нейтральная оценка, когда скоринг недоступен или упал.
func DefaultRiskScore() RiskScore {
	return RiskScore{Value: 0.5, Origin: ScoreFromFallback}
}
