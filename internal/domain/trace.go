package domain

import "time"

// Имена компонентов пайплайна, как они фиксируются в трейс-журнале.
// TraceReader опирается на ComponentFinalDecision при сборке summary.
const (
	ComponentFallback      = "InitialFallbackCheck"
	ComponentAmount        = "AmountChecker"
	ComponentLocation      = "LocationValidator"
	ComponentMerchant      = "MerchantRiskChecker"
	ComponentScorer        = "RiskScorer"
	ComponentPolicy        = "ComplianceGuard"
	ComponentPolicyMatch   = "ComplianceGuardSummary"
	ComponentNarrative     = "NarrativeAgent"
	ComponentFinalDecision = "FinalDecisionAgent"
)

// TraceStep — одна неизменяемая запись журнала прогона.
// Записи append-only: после фиксации шаг никогда не правится и не удаляется.
type TraceStep struct {
	Timestamp     time.Time      `json:"timestamp"`
	TransactionID string         `json:"transaction_id"`
	Step          int            `json:"step"`       // порядковый номер стадии
	Component     string         `json:"component"`  // кто писал
	InputData     map[string]any `json:"input_data"` // снапшот входа стадии
	Description   string         `json:"description"`
	Confidence    float64        `json:"confidence"` // округлено до 2 знаков при записи

	PolicyViolation bool   `json:"policy_violation"`
	PolicyID        string `json:"policy_id,omitempty"`

	// Заполняются только на терминальном шаге (Resolution)
	FinalDecisionStatus     string   `json:"final_decision_status,omitempty"`
	FinalDecisionConfidence *float64 `json:"final_decision_confidence,omitempty"`
}

// IsTerminal сообщает, является ли шаг авторитетной записью финального решения.
func (s TraceStep) IsTerminal() bool {
	return s.Component == ComponentFinalDecision && s.FinalDecisionStatus != ""
}
