package policy

import (
	"context"
	"fmt"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
	"go.uber.org/zap"
)

// Номер стадии оценки политик в трейсе прогона.
const policyStep = 6

type compiledRule struct {
	rule domain.PolicyRule
	prog Expr
	err  error // ошибка компиляции условия, правило будет пропускаться
}

// Engine оценивает транзакцию против загруженного набора правил.
// Набор неизменяем после конструирования; сам движок не держит состояния
// прогона и безопасен для конкурентных вызовов Evaluate.
type Engine struct {
	rules      []compiledRule
	thresholds infra.ThresholdsConfig
	journal    *journal.Journal
	logger     *zap.Logger
}

func NewEngine(rules []domain.PolicyRule, thresholds infra.ThresholdsConfig, jrnl *journal.Journal, logger *zap.Logger) *Engine {
	e := &Engine{
		thresholds: thresholds,
		journal:    jrnl,
		logger:     logger.Named("policy"),
	}

	// Условия компилируются один раз. Битое условие не выбрасывает правило
	// из набора — оно остается на своем месте и пропускается с warning,
	// чтобы не сдвигать порядок оценки остальных.
	for _, r := range rules {
		cr := compiledRule{rule: r}
		cr.prog, cr.err = Parse(r.Condition)
		if cr.err != nil {
			e.logger.Warn("rule condition does not compile",
				zap.String("rule_id", r.ID),
				zap.String("condition", r.Condition),
				zap.Error(cr.err),
			)
		}
		e.rules = append(e.rules, cr)
	}
	return e
}

// Evaluate прогоняет правила в порядке загрузки. Первое совпавшее правило —
// результат, остальные не оцениваются. Пустой набор — валидный случай:
// возвращается нейтральный результат.
func (e *Engine) Evaluate(ctx context.Context, txn domain.Transaction, flags domain.Flags) domain.PolicyResult {
	factCtx := e.factContext(txn, flags)

	// Фиксируем сам факт проверки — всегда, независимо от исхода
	e.journal.Record(ctx, domain.TraceStep{
		TransactionID: txn.TransactionID,
		Step:          policyStep,
		Component:     domain.ComponentPolicy,
		InputData: map[string]any{
			"transaction_data": txn,
			"flags":            map[string]any{"amount": flags.Amount, "location": flags.Location, "merchant": flags.Merchant},
		},
		Description: "Checking transaction against policy rules.",
		Confidence:  0.8,
	})

	for _, cr := range e.rules {
		if cr.err != nil {
			e.logger.Warn("skipping rule with broken condition",
				zap.String("rule_id", cr.rule.ID), zap.Error(cr.err))
			continue
		}

		matched, err := EvalBool(cr.prog, factCtx)
		if err != nil {
			// Ошибка вычисления (type error и т.п.) — правило пропускается,
			// оценка следующих продолжается
			e.logger.Warn("rule evaluation failed",
				zap.String("rule_id", cr.rule.ID),
				zap.String("condition", cr.rule.Condition),
				zap.Error(err),
			)
			continue
		}
		if !matched {
			continue
		}

		e.journal.Record(ctx, domain.TraceStep{
			TransactionID: txn.TransactionID,
			Step:          policyStep,
			Component:     domain.ComponentPolicy,
			InputData: map[string]any{
				"rule_id":   cr.rule.ID,
				"condition": cr.rule.Condition,
				"action":    cr.rule.Action,
			},
			Description:     fmt.Sprintf("Policy %s violated: %s", cr.rule.ID, cr.rule.Reason),
			Confidence:      cr.rule.Confidence,
			PolicyViolation: true,
			PolicyID:        cr.rule.ID,
		})

		return domain.PolicyResult{
			Violated:   true,
			PolicyID:   cr.rule.ID,
			Reason:     cr.rule.Reason,
			Confidence: cr.rule.Confidence,
			Action:     cr.rule.Action,
		}
	}

	return domain.NoViolation()
}

// RuleCount — размер загруженного набора (для стартового лога и метрик).
func (e *Engine) RuleCount() int {
	return len(e.rules)
}

// factContext собирает закрытый набор имен, доступных условиям правил.
// Ничего, кроме перечисленного здесь, автору политики не видно.
func (e *Engine) factContext(txn domain.Transaction, flags domain.Flags) Context {
	return Context{
		"amount":            txn.Amount,
		"card_type":         txn.CardType,
		"user_location":     txn.UserLocation,
		"merchant_location": txn.MerchantLocation,
		"merchant":          txn.Merchant,

		"amount_flag":   flags.Amount,
		"location_flag": flags.Location,
		"merchant_flag": flags.Merchant,

		"HIGH_VALUE_TRANSACTION_THRESHOLD":     e.thresholds.HighValue,
		"VIRTUAL_CARD_LIMIT":                   e.thresholds.VirtualCardLimit,
		"EXTREMELY_HIGH_VALUE_DEBIT_THRESHOLD": e.thresholds.ExtremelyHighValue,
	}
}
