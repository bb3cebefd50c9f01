package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
	"github.com/xela07ax/fraudscope-prototype/internal/policy"
	"github.com/xela07ax/fraudscope-prototype/internal/risk"
	"go.uber.org/zap"
)

// scorerFunc — подменный классификатор для пайплайна.
type scorerFunc func(ctx context.Context, features risk.Features) (float64, error)

func (f scorerFunc) Predict(ctx context.Context, features risk.Features) (float64, error) {
	return f(ctx, features)
}

// stubNarrator фиксирует, с чем его позвали, и отдает фиксированный текст.
type stubNarrator struct {
	lastTxn    domain.Transaction
	lastFlags  domain.Flags
	lastPolicy domain.PolicyResult
}

func (s *stubNarrator) Explain(ctx context.Context, txn domain.Transaction, flags domain.Flags, policyResult domain.PolicyResult) string {
	s.lastTxn = txn
	s.lastFlags = flags
	s.lastPolicy = policyResult
	return "stub narrative"
}

type pipelineFixture struct {
	pipeline *Pipeline
	store    *journal.MemoryStore
	narrator *stubNarrator
}

func newPipelineFixture(t *testing.T, scorer risk.Scorer, rules []domain.PolicyRule) *pipelineFixture {
	t.Helper()
	logger := zap.NewNop()
	thresholds := testThresholds()
	store := journal.NewMemoryStore()
	jrnl := journal.NewJournal(store, logger, nil)
	narrator := &stubNarrator{}

	p := NewPipeline(
		thresholds,
		NewFallbackGate(thresholds.Confidence, jrnl),
		risk.NewSignalExtractor(thresholds, jrnl, logger),
		scorer,
		policy.NewEngine(rules, thresholds, jrnl, logger),
		narrator,
		jrnl,
		NewMetrics(nil),
		logger,
	)
	return &pipelineFixture{pipeline: p, store: store, narrator: narrator}
}

func pipelineSteps(t *testing.T, store *journal.MemoryStore, id string) []domain.TraceStep {
	t.Helper()
	raw, err := store.ReadAll(context.Background(), id)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	steps := make([]domain.TraceStep, 0, len(raw))
	for _, rec := range raw {
		var step domain.TraceStep
		if err := json.Unmarshal(rec, &step); err != nil {
			t.Fatalf("unmarshal step: %v", err)
		}
		steps = append(steps, step)
	}
	return steps
}

func TestPipeline_CleanTransactionIsSafe(t *testing.T) {
	fx := newPipelineFixture(t, nil, nil)

	result := fx.pipeline.Evaluate(context.Background(), domain.Transaction{
		TransactionID: "tx-1", Amount: 150, CardType: "credit",
		Merchant: "Amazon", UserLocation: "USA", MerchantLocation: "USA",
	})

	if result.Status != domain.StatusSafe {
		t.Errorf("status = %s, want safe", result.Status)
	}
	if result.Confidence != 0.5 {
		t.Errorf("confidence = %v, want default 0.5", result.Confidence)
	}
	if result.Narrative != "stub narrative" {
		t.Errorf("narrative = %q", result.Narrative)
	}

	// Нормализация видна коллаборатору: регистр приведен
	if fx.narrator.lastTxn.Merchant != "amazon" || fx.narrator.lastTxn.UserLocation != "usa" {
		t.Errorf("narrator saw non-normalized txn: %+v", fx.narrator.lastTxn)
	}

	// Шаги чистого прогона: scoring (дефолт), policy check, терминальный
	steps := pipelineSteps(t, fx.store, "tx-1")
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d: %+v", len(steps), steps)
	}
	if steps[0].Description != "Scoring backend not configured, using default score (0.5)." {
		t.Errorf("scoring step = %q", steps[0].Description)
	}
	last := steps[len(steps)-1]
	if !last.IsTerminal() || last.FinalDecisionStatus != domain.StatusSafe {
		t.Errorf("terminal step = %+v", last)
	}
	if last.FinalDecisionConfidence == nil || *last.FinalDecisionConfidence != 0.5 {
		t.Errorf("terminal confidence = %v", last.FinalDecisionConfidence)
	}
}

func TestPipeline_MissingFieldsEscalateEarly(t *testing.T) {
	called := false
	scorer := scorerFunc(func(ctx context.Context, features risk.Features) (float64, error) {
		called = true
		return 0.9, nil
	})
	fx := newPipelineFixture(t, scorer, nil)

	result := fx.pipeline.Evaluate(context.Background(), domain.Transaction{
		TransactionID: "tx-1", Amount: 150, CardType: "credit",
		UserLocation: "usa", MerchantLocation: "usa", // merchant отсутствует
	})

	if result.Status != domain.StatusEscalated || result.Confidence != 0.1 {
		t.Errorf("got %s/%v, want escalated/0.1", result.Status, result.Confidence)
	}
	if called {
		t.Error("scorer must not run on the short path")
	}
	if fx.narrator.lastTxn.InitialFallbackReason == "" {
		t.Error("fallback reason must reach the narrator")
	}

	// Короткий путь: fallback-шаг и терминальный, глубокий анализ не выполнялся
	steps := pipelineSteps(t, fx.store, "tx-1")
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Component != domain.ComponentFallback {
		t.Errorf("first step = %+v", steps[0])
	}
}

func TestPipeline_RiskyMerchantIsFraud(t *testing.T) {
	scorer := scorerFunc(func(ctx context.Context, features risk.Features) (float64, error) {
		if features.MerchantIsRisky != 1 {
			t.Error("merchant flag must be encoded in features")
		}
		return 0.30, nil
	})
	fx := newPipelineFixture(t, scorer, nil)

	result := fx.pipeline.Evaluate(context.Background(), domain.Transaction{
		TransactionID: "tx-1", Amount: 100, CardType: "credit",
		Merchant: "Fraud_Kirlin", UserLocation: "usa", MerchantLocation: "usa",
	})

	if result.Status != domain.StatusFraud || result.Confidence != 0.95 {
		t.Errorf("got %s/%v, want fraud/0.95", result.Status, result.Confidence)
	}
}

func TestPipeline_ScorerFailureFallsBackToDefault(t *testing.T) {
	scorer := scorerFunc(func(ctx context.Context, features risk.Features) (float64, error) {
		return 0, context.DeadlineExceeded
	})
	fx := newPipelineFixture(t, scorer, nil)

	result := fx.pipeline.Evaluate(context.Background(), domain.Transaction{
		TransactionID: "tx-1", Amount: 150, CardType: "credit",
		Merchant: "amazon", UserLocation: "usa", MerchantLocation: "usa",
	})

	// Сбой классификатора не роняет прогон: решение по дефолтному скору
	if result.Status != domain.StatusSafe || result.Confidence != 0.5 {
		t.Errorf("got %s/%v, want safe/0.5", result.Status, result.Confidence)
	}

	steps := pipelineSteps(t, fx.store, "tx-1")
	var found bool
	for _, s := range steps {
		if s.Description == "Model prediction failed, using default score." {
			found = true
			if s.Component != domain.ComponentScorer || s.Confidence != 0 {
				t.Errorf("degraded scoring step = %+v", s)
			}
		}
	}
	if !found {
		t.Error("degraded scoring step must be journaled")
	}
}

func TestPipeline_PolicyViolationOverridesScore(t *testing.T) {
	scorer := scorerFunc(func(ctx context.Context, features risk.Features) (float64, error) {
		return 0.10, nil
	})
	rules := []domain.PolicyRule{{
		ID:         "extreme_review",
		Condition:  "amount > EXTREMELY_HIGH_VALUE_DEBIT_THRESHOLD and card_type == 'debit'",
		Action:     domain.StatusFraud,
		Reason:     "Extremely high value debit transaction.",
		Confidence: 0.99,
	}}
	fx := newPipelineFixture(t, scorer, rules)

	result := fx.pipeline.Evaluate(context.Background(), domain.Transaction{
		TransactionID: "tx-1", Amount: 150000, CardType: "debit",
		Merchant: "amazon", UserLocation: "usa", MerchantLocation: "usa",
	})

	if result.Status != domain.StatusFraud || result.Confidence != 0.99 {
		t.Errorf("got %s/%v, want fraud/0.99", result.Status, result.Confidence)
	}

	steps := pipelineSteps(t, fx.store, "tx-1")
	var matchSteps int
	for _, s := range steps {
		if s.PolicyViolation && s.PolicyID != "extreme_review" {
			t.Errorf("unexpected policy id: %+v", s)
		}
		if s.Component == domain.ComponentPolicyMatch {
			matchSteps++
		}
	}
	if matchSteps != 1 {
		t.Errorf("policy match summary steps = %d, want 1", matchSteps)
	}
}

func TestPipeline_GeneratesTransactionID(t *testing.T) {
	fx := newPipelineFixture(t, nil, nil)

	result := fx.pipeline.Evaluate(context.Background(), domain.Transaction{
		Amount: 150, CardType: "credit",
		Merchant: "amazon", UserLocation: "usa", MerchantLocation: "usa",
	})

	if result.TransactionID == "" {
		t.Fatal("transaction id must be generated")
	}
	// Журнал пишется под сгенерированный id
	if steps := pipelineSteps(t, fx.store, result.TransactionID); len(steps) == 0 {
		t.Error("journal must be keyed by the generated id")
	}
}

func TestPipeline_ConfidenceRoundedOnOutput(t *testing.T) {
	scorer := scorerFunc(func(ctx context.Context, features risk.Features) (float64, error) {
		return 0.8567, nil
	})
	fx := newPipelineFixture(t, scorer, nil)

	result := fx.pipeline.Evaluate(context.Background(), domain.Transaction{
		TransactionID: "tx-1", Amount: 150, CardType: "credit",
		Merchant: "amazon", UserLocation: "usa", MerchantLocation: "usa",
	})

	if result.Status != domain.StatusFraud {
		t.Errorf("status = %s, want fraud", result.Status)
	}
	if result.Confidence != 0.86 {
		t.Errorf("confidence = %v, want 0.86", result.Confidence)
	}
}

func TestPipeline_JournalIsReplayable(t *testing.T) {
	fx := newPipelineFixture(t, nil, nil)
	ctx := context.Background()

	fx.pipeline.Evaluate(ctx, domain.Transaction{
		TransactionID: "tx-1", Amount: 6000, CardType: "virtual",
		Merchant: "amazon", UserLocation: "usa", MerchantLocation: "nigeria",
	})

	first, err := fx.store.ReadAll(ctx, "tx-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	second, err := fx.store.ReadAll(ctx, "tx-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("reads differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !bytes.Equal(first[i], second[i]) {
			t.Errorf("record %d differs between reads", i)
		}
	}

	// Summary, собранная читателем, согласована с терминальным шагом
	reader := journal.NewReader(fx.store, zap.NewNop(), 0.85, 0.60)
	summary, err := reader.Summary(ctx, "tx-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.FinalDecision != domain.StatusFraud {
		t.Errorf("summary decision = %q, want fraud", summary.FinalDecision)
	}
}
