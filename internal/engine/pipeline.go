package engine

/*
Файл pipeline.go — оркестратор прогона одной транзакции.

Машина состояний:

	Intake -> FallbackCheck -> { Escalated (короткий путь)
	                          | SignalExtraction -> Scoring -> PolicyEvaluation }
	       -> Resolution -> NarrativeRequest -> Logged

Внутри ядра нет ретраев: сбой любой стадии поглощается локально, пайплайн
всегда доходит до Resolution. Каждый прогон самодостаточен и последователен,
разделяемое состояние между конкурентными прогонами — только read-only набор
правил и append-only журнал.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
	"github.com/xela07ax/fraudscope-prototype/internal/narrative"
	"github.com/xela07ax/fraudscope-prototype/internal/policy"
	"github.com/xela07ax/fraudscope-prototype/internal/risk"
	"go.uber.org/zap"
)

// Номера терминальных стадий в трейсе прогона.
const (
	scoringStep  = 5
	terminalStep = 8
)

type Pipeline struct {
	gate      *FallbackGate
	signals   *risk.SignalExtractor
	scorer    risk.Scorer // nil — скоринг не сконфигурирован
	policies  *policy.Engine
	narrator  narrative.Generator
	resolver  *Resolver
	journal   *journal.Journal
	metrics   *Metrics
	logger    *zap.Logger
	threshold infra.ThresholdsConfig
}

func NewPipeline(
	thresholds infra.ThresholdsConfig,
	gate *FallbackGate,
	signals *risk.SignalExtractor,
	scorer risk.Scorer,
	policies *policy.Engine,
	narrator narrative.Generator,
	jrnl *journal.Journal,
	metrics *Metrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		gate:      gate,
		signals:   signals,
		scorer:    scorer,
		policies:  policies,
		narrator:  narrator,
		resolver:  NewResolver(thresholds),
		journal:   jrnl,
		metrics:   metrics,
		logger:    logger.Named("pipeline"),
		threshold: thresholds,
	}
}

// Evaluate выполняет один прогон. Ошибок не возвращает: любой исход
// представим как решение, вплоть до эскалации по неполным данным.
func (p *Pipeline) Evaluate(ctx context.Context, txn domain.Transaction) domain.DecisionResult {
	start := time.Now()

	// Intake: id и нормализация. Дальше транзакция неизменна, кроме
	// единственного обогащения — причины раннего эскалирования.
	if txn.EnsureID() {
		p.logger.Info("generated transaction id", zap.String("transaction_id", txn.TransactionID))
	}
	txn = txn.Normalized()

	flags := domain.Flags{}
	policyResult := domain.NoViolation()
	score := domain.DefaultRiskScore()

	// FallbackCheck
	fallback := p.gate.Check(ctx, txn, 1.0)
	if fallback.Triggered {
		txn.InitialFallbackReason = fallback.Reason
	} else {
		// SignalExtraction -> Scoring -> PolicyEvaluation
		flags = p.signals.Extract(ctx, txn)
		score = p.score(ctx, txn, flags)
		policyResult = p.policies.Evaluate(ctx, txn, flags)
		if policyResult.Violated {
			p.metrics.PolicyViolations.WithLabelValues(policyResult.PolicyID).Inc()
			p.journal.Record(ctx, domain.TraceStep{
				TransactionID: txn.TransactionID,
				Step:          6,
				Component:     domain.ComponentPolicyMatch,
				InputData:     map[string]any{"transaction_data": txn},
				Description: fmt.Sprintf("Policy %s violated: %s",
					policyResult.PolicyID, policyResult.Reason),
				Confidence:      policyResult.Confidence,
				PolicyViolation: true,
				PolicyID:        policyResult.PolicyID,
			})
		}
	}

	// Resolution
	status, confidence := p.resolver.Resolve(txn, fallback, flags, policyResult, score)

	// NarrativeRequest: внешний коллаборатор, деградирует сам, не роняет нас
	text := p.narrator.Explain(ctx, txn, flags, policyResult)

	// Logged: терминальный шаг — авторитетная запись финального решения
	finalConf := confidence
	p.journal.Record(ctx, domain.TraceStep{
		TransactionID: txn.TransactionID,
		Step:          terminalStep,
		Component:     domain.ComponentFinalDecision,
		InputData:     map[string]any{"final_status": status, "final_confidence": confidence},
		Description:   fmt.Sprintf("Final decision: %s with confidence %.2f", status, confidence),
		Confidence:    confidence,

		FinalDecisionStatus:     status,
		FinalDecisionConfidence: &finalConf,
	})

	p.metrics.DecisionsTotal.WithLabelValues(status).Inc()
	p.metrics.PipelineDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	return domain.DecisionResult{
		Status:        status,
		Confidence:    domain.Round2(confidence),
		TransactionID: txn.TransactionID,
		Narrative:     text,
	}
}

// score — граница с внешним классификатором. Любой сбой поглощается здесь:
// наружу всегда уходит валидный RiskScore, в худшем случае нейтральный дефолт.
func (p *Pipeline) score(ctx context.Context, txn domain.Transaction, flags domain.Flags) domain.RiskScore {
	if p.scorer == nil {
		p.metrics.ScorerFallbacks.Inc()
		p.journal.Record(ctx, domain.TraceStep{
			TransactionID: txn.TransactionID,
			Step:          scoringStep,
			Component:     domain.ComponentScorer,
			InputData:     map[string]any{},
			Description:   "Scoring backend not configured, using default score (0.5).",
			Confidence:    0.0,
		})
		return domain.DefaultRiskScore()
	}

	features := risk.BuildFeatures(txn, flags)
	value, err := p.scorer.Predict(ctx, features)
	if err != nil {
		p.metrics.ScorerFallbacks.Inc()
		p.logger.Warn("model prediction failed, using default score",
			zap.String("transaction_id", txn.TransactionID), zap.Error(err))
		p.journal.Record(ctx, domain.TraceStep{
			TransactionID: txn.TransactionID,
			Step:          scoringStep,
			Component:     domain.ComponentScorer,
			InputData:     map[string]any{"error": err.Error()},
			Description:   "Model prediction failed, using default score.",
			Confidence:    0.0,
		})
		return domain.DefaultRiskScore()
	}

	p.journal.Record(ctx, domain.TraceStep{
		TransactionID: txn.TransactionID,
		Step:          scoringStep,
		Component:     domain.ComponentScorer,
		InputData:     map[string]any{"features": features},
		Description:   fmt.Sprintf("Model fraud score: %.2f", value),
		Confidence:    value,
	})
	return domain.RiskScore{Value: value, Origin: domain.ScoreFromModel}
}
