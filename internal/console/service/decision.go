package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/engine"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
)

// DecisionService — прикладной слой консоли: прогон транзакции и чтение
// трейсов. HTTP-слой зависит от сервиса, сервис — от ядра.
type DecisionService struct {
	pipeline *engine.Pipeline
	reader   *journal.Reader
}

func NewDecisionService(pipeline *engine.Pipeline, reader *journal.Reader) *DecisionService {
	return &DecisionService{pipeline: pipeline, reader: reader}
}

// Evaluate запускает прогон пайплайна для входной транзакции.
func (s *DecisionService) Evaluate(ctx context.Context, txn domain.Transaction) domain.DecisionResult {
	return s.pipeline.Evaluate(ctx, txn)
}

// TraceSummary возвращает свертку журнала транзакции.
func (s *DecisionService) TraceSummary(ctx context.Context, transactionID string) (journal.SummaryTrace, error) {
	summary, err := s.reader.Summary(ctx, transactionID)
	if err != nil {
		return journal.SummaryTrace{}, fmt.Errorf("decision_service: read summary: %w", err)
	}
	return summary, nil
}

// TraceVerbose возвращает полную последовательность шагов.
func (s *DecisionService) TraceVerbose(ctx context.Context, transactionID string) (journal.VerboseTrace, error) {
	verbose, err := s.reader.Verbose(ctx, transactionID)
	if err != nil {
		return journal.VerboseTrace{}, fmt.Errorf("decision_service: read verbose: %w", err)
	}
	return verbose, nil
}
