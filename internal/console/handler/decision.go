package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/fraudscope-prototype/internal/console/service"
	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"

	"github.com/go-chi/chi/v5"
)

type DecisionHandler struct {
	service *service.DecisionService
}

func NewDecisionHandler(s *service.DecisionService) *DecisionHandler {
	return &DecisionHandler{service: s}
}

// Routes Маршруты для Chi
func (h *DecisionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/transactions", h.Evaluate)                      // POST /v1/transactions
	r.Get("/trace/{transactionID}/summary", h.TraceSummary)  // GET /v1/trace/tx-1/summary
	r.Get("/trace/{transactionID}/verbose", h.TraceVerbose)  // GET /v1/trace/tx-1/verbose
	return r
}

// Evaluate принимает транзакцию и возвращает финальное решение с трейс-id.
func (h *DecisionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var txn domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		http.Error(w, "invalid transaction payload", http.StatusBadRequest)
		return
	}
	if txn.Amount < 0 {
		http.Error(w, "amount must be non-negative", http.StatusBadRequest)
		return
	}

	result := h.service.Evaluate(r.Context(), txn)
	writeJSON(w, http.StatusOK, result)
}

func (h *DecisionHandler) TraceSummary(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	summary, err := h.service.TraceSummary(r.Context(), transactionID)
	if err != nil {
		http.Error(w, "Failed to read trace", http.StatusInternalServerError)
		return
	}
	if summary.FinalDecision == journal.NoTraceData {
		http.Error(w, "Trace not found for this transaction ID", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *DecisionHandler) TraceVerbose(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	verbose, err := h.service.TraceVerbose(r.Context(), transactionID)
	if err != nil {
		http.Error(w, "Failed to read trace", http.StatusInternalServerError)
		return
	}
	if len(verbose.Steps) == 0 {
		http.Error(w, "Trace not found for this transaction ID", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, verbose)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
