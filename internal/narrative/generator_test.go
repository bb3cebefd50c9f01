package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
	"go.uber.org/zap"
)

func testConfig(url string) infra.NarrativeConfig {
	return infra.NarrativeConfig{
		URL:          url,
		Model:        "llama3-8b-8192",
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		Timeout:      time.Second,
	}
}

func newTestGenerator(t *testing.T, url string) (*LLMGenerator, *journal.MemoryStore) {
	t.Helper()
	store := journal.NewMemoryStore()
	jrnl := journal.NewJournal(store, zap.NewNop(), nil)
	return NewLLMGenerator(testConfig(url), nil, jrnl, zap.NewNop()), store
}

func sampleTxn() domain.Transaction {
	return domain.Transaction{
		TransactionID: "tx-1", Amount: 6000, CardType: "virtual",
		Merchant: "fraud_kirlin", UserLocation: "usa", MerchantLocation: "nigeria",
	}
}

func lastStep(t *testing.T, store *journal.MemoryStore, id string) domain.TraceStep {
	t.Helper()
	raw, err := store.ReadAll(context.Background(), id)
	if err != nil || len(raw) == 0 {
		t.Fatalf("no journal records: %v", err)
	}
	var step domain.TraceStep
	if err := json.Unmarshal(raw[len(raw)-1], &step); err != nil {
		t.Fatalf("unmarshal step: %v", err)
	}
	return step
}

func TestExplain_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["model"] != "llama3-8b-8192" {
			t.Errorf("model = %v", payload["model"])
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"The transaction was flagged for review."}}]}`))
	}))
	defer srv.Close()

	gen, store := newTestGenerator(t, srv.URL)
	text := gen.Explain(context.Background(), sampleTxn(), domain.Flags{Merchant: true}, domain.PolicyResult{})

	if text != "The transaction was flagged for review." {
		t.Errorf("narrative = %q", text)
	}

	step := lastStep(t, store, "tx-1")
	if step.Component != domain.ComponentNarrative || step.Step != narrativeStep {
		t.Errorf("unexpected step: %+v", step)
	}
	if step.Description != text {
		t.Errorf("step description = %q", step.Description)
	}
	if _, ok := step.InputData["prompt_to_llm"]; !ok {
		t.Error("prompt must be captured in trace")
	}
}

func TestExplain_UpstreamFailureDegradesToApology(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gen, store := newTestGenerator(t, srv.URL)
	text := gen.Explain(context.Background(), sampleTxn(), domain.Flags{}, domain.PolicyResult{})

	if text != Apology {
		t.Errorf("narrative = %q, want apology", text)
	}
	if calls != 2 {
		t.Errorf("upstream calls = %d, want full retry budget", calls)
	}
	// Извинение тоже попадает в журнал как описание шага
	if step := lastStep(t, store, "tx-1"); step.Description != Apology {
		t.Errorf("step description = %q", step.Description)
	}
}

func TestExplain_NotConfigured(t *testing.T) {
	gen, store := newTestGenerator(t, "")
	text := gen.Explain(context.Background(), sampleTxn(), domain.Flags{}, domain.PolicyResult{})

	if text != Disabled {
		t.Errorf("narrative = %q", text)
	}
	if step := lastStep(t, store, "tx-1"); step.Description != Disabled {
		t.Errorf("step description = %q", step.Description)
	}
}

func TestExplain_EmptyCompletionIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	gen, _ := newTestGenerator(t, srv.URL)
	if text := gen.Explain(context.Background(), sampleTxn(), domain.Flags{}, domain.PolicyResult{}); text != Apology {
		t.Errorf("narrative = %q, want apology", text)
	}
}

func TestCollectReasons(t *testing.T) {
	txn := sampleTxn()
	txn.InitialFallbackReason = "Missing required fields: merchant"

	reasons := collectReasons(txn, domain.Flags{Amount: true, Location: true, Merchant: true}, domain.PolicyResult{
		Violated: true, PolicyID: "P-100", Reason: "Extreme amount.",
	})

	if len(reasons) != 5 {
		t.Fatalf("reasons = %d, want 5: %v", len(reasons), reasons)
	}
	joined := strings.Join(reasons, "\n")
	for _, frag := range []string{"High-value payment", "Cross-border", "High-risk merchant", "Policy P-100 was violated", "Initial data missing"} {
		if !strings.Contains(joined, frag) {
			t.Errorf("reasons missing %q:\n%s", frag, joined)
		}
	}
}

func TestBuildPrompt_SafeVsFlagged(t *testing.T) {
	txn := sampleTxn()

	safe := buildPrompt(txn, nil)
	if !strings.Contains(safe, "passed all fraud checks") {
		t.Errorf("safe prompt = %q", safe)
	}

	flagged := buildPrompt(txn, []string{"- High-risk merchant detected: fraud_kirlin."})
	if !strings.Contains(flagged, "Triggered Reasons/Flags:") || !strings.Contains(flagged, "fraud_kirlin") {
		t.Errorf("flagged prompt = %q", flagged)
	}
}
