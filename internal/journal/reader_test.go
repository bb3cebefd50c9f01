package journal

import (
	"context"
	"testing"
	"time"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"go.uber.org/zap"
)

func newTestReader(t *testing.T) (*Reader, *MemoryStore, *Journal) {
	t.Helper()
	store := NewMemoryStore()
	jrnl := NewJournal(store, zap.NewNop(), nil)
	reader := NewReader(store, zap.NewNop(), 0.85, 0.60)
	return reader, store, jrnl
}

func TestReader_VerboseOrdersAndDefaults(t *testing.T) {
	reader, store, jrnl := newTestReader(t)
	ctx := context.Background()

	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 5, Component: domain.ComponentScorer, Confidence: 0.5})
	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 2, Component: domain.ComponentAmount, Confidence: 0.8})
	// Частично заполненная запись: читатель добивает дефолты, не падает
	_ = store.Append(ctx, "tx-1", []byte(`{"step":3}`))

	verbose, err := reader.Verbose(ctx, "tx-1")
	if err != nil {
		t.Fatalf("verbose: %v", err)
	}
	if len(verbose.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(verbose.Steps))
	}

	wantSteps := []int{2, 3, 5}
	for i, want := range wantSteps {
		if verbose.Steps[i].Step != want {
			t.Errorf("steps[%d].Step = %d, want %d", i, verbose.Steps[i].Step, want)
		}
	}

	bare := verbose.Steps[1]
	if bare.Component != "Unknown" {
		t.Errorf("defaulted component = %q", bare.Component)
	}
	if bare.Description != "No description provided." {
		t.Errorf("defaulted description = %q", bare.Description)
	}
	if bare.InputData == nil {
		t.Error("defaulted input_data must not be nil")
	}
	if bare.TransactionID != "tx-1" {
		t.Errorf("defaulted transaction id = %q", bare.TransactionID)
	}
	if bare.Timestamp.IsZero() {
		t.Error("defaulted timestamp must be set")
	}
}

func TestReader_MalformedRecordsAreSkipped(t *testing.T) {
	reader, store, jrnl := newTestReader(t)
	ctx := context.Background()

	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 1, Component: domain.ComponentFallback})
	_ = store.Append(ctx, "tx-1", []byte(`{broken json`))
	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 2, Component: domain.ComponentAmount})

	verbose, err := reader.Verbose(ctx, "tx-1")
	if err != nil {
		t.Fatalf("verbose: %v", err)
	}
	if len(verbose.Steps) != 2 {
		t.Errorf("expected malformed record skipped, got %d steps", len(verbose.Steps))
	}
}

func TestReader_SummaryPrefersTerminalStep(t *testing.T) {
	reader, _, jrnl := newTestReader(t)
	ctx := context.Background()

	conf := 0.95
	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 4, Component: domain.ComponentMerchant, Confidence: 0.91})
	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 6, Component: domain.ComponentPolicy, Confidence: 0.8, PolicyViolation: true, PolicyID: "P-1"})
	jrnl.Record(ctx, domain.TraceStep{
		TransactionID: "tx-1", Step: 8, Component: domain.ComponentFinalDecision,
		Confidence: 0.95, FinalDecisionStatus: domain.StatusFraud, FinalDecisionConfidence: &conf,
	})
	// Поздний шаг с низким confidence не должен перебить терминальное решение
	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 9, Component: "Unknown", Confidence: 0.1})

	summary, err := reader.Summary(ctx, "tx-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.FinalDecision != domain.StatusFraud {
		t.Errorf("final decision = %q, want fraud", summary.FinalDecision)
	}
	if summary.FinalConfidence != 0.95 {
		t.Errorf("final confidence = %v, want 0.95", summary.FinalConfidence)
	}
	if summary.ViolationsCount != 1 {
		t.Errorf("violations = %d, want 1", summary.ViolationsCount)
	}
}

func TestReader_SummaryComponentsSortedAndDistinct(t *testing.T) {
	reader, _, jrnl := newTestReader(t)
	ctx := context.Background()

	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 6, Component: domain.ComponentPolicy})
	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 6, Component: domain.ComponentPolicy})
	jrnl.Record(ctx, domain.TraceStep{TransactionID: "tx-1", Step: 2, Component: domain.ComponentAmount})

	summary, err := reader.Summary(ctx, "tx-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	want := []string{domain.ComponentAmount, domain.ComponentPolicy}
	if len(summary.ComponentsTriggered) != len(want) {
		t.Fatalf("components = %v, want %v", summary.ComponentsTriggered, want)
	}
	for i := range want {
		if summary.ComponentsTriggered[i] != want[i] {
			t.Errorf("components = %v, want %v", summary.ComponentsTriggered, want)
		}
	}
}

func TestReader_SummaryInfersDecisionFromTruncatedJournal(t *testing.T) {
	reader, _, jrnl := newTestReader(t)
	ctx := context.Background()

	cases := []struct {
		lastConfidence float64
		wantDecision   string
	}{
		{0.90, domain.StatusFraud},     // > 0.85
		{0.85, domain.StatusEscalated}, // ровно на пороге confidence — еще не fraud
		{0.70, domain.StatusEscalated},
		{0.60, domain.StatusEscalated},
		{0.59, domain.StatusSafe},
	}

	for i, tc := range cases {
		id := string(rune('a' + i))
		jrnl.Record(ctx, domain.TraceStep{TransactionID: id, Step: 5, Component: domain.ComponentScorer, Confidence: tc.lastConfidence})

		summary, err := reader.Summary(ctx, id)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		if summary.FinalDecision != tc.wantDecision {
			t.Errorf("confidence %v: decision = %q, want %q", tc.lastConfidence, summary.FinalDecision, tc.wantDecision)
		}
		if summary.FinalConfidence != tc.lastConfidence {
			t.Errorf("confidence %v: summary confidence = %v", tc.lastConfidence, summary.FinalConfidence)
		}
	}
}

func TestReader_EmptyJournal(t *testing.T) {
	reader, _, _ := newTestReader(t)

	summary, err := reader.Summary(context.Background(), "absent")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.FinalDecision != NoTraceData {
		t.Errorf("decision = %q, want %q", summary.FinalDecision, NoTraceData)
	}
	if len(summary.ComponentsTriggered) != 0 || summary.ViolationsCount != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestJournal_RoundsConfidenceOnWrite(t *testing.T) {
	reader, _, jrnl := newTestReader(t)
	ctx := context.Background()

	jrnl.Record(ctx, domain.TraceStep{
		TransactionID: "tx-1", Step: 5, Component: domain.ComponentScorer,
		Confidence: 0.8234567, Timestamp: time.Now(),
	})

	verbose, err := reader.Verbose(ctx, "tx-1")
	if err != nil {
		t.Fatalf("verbose: %v", err)
	}
	if verbose.Steps[0].Confidence != 0.82 {
		t.Errorf("persisted confidence = %v, want 0.82", verbose.Steps[0].Confidence)
	}
}
