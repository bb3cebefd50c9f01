package journal

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"go.uber.org/zap"
)

// VerboseTrace — полная упорядоченная последовательность шагов прогона.
type VerboseTrace struct {
	TransactionID string             `json:"transaction_id"`
	Steps         []domain.TraceStep `json:"steps"`
}

// SummaryTrace — свертка журнала: кто срабатывал, сколько нарушений,
// авторитетное финальное решение.
type SummaryTrace struct {
	TransactionID       string   `json:"transaction_id"`
	ComponentsTriggered []string `json:"components_triggered"`
	FinalConfidence     float64  `json:"final_confidence"`
	FinalDecision       string   `json:"final_decision"`
	ViolationsCount     int      `json:"violations_count"`
}

// NoTraceData — финальное решение в summary при полном отсутствии журнала.
const NoTraceData = "No trace data"

// Reader восстанавливает представления журнала для внешнего потребления.
// Читатель обязан переживать частично битые персистентные записи:
// нечитаемые строки пропускаются, отсутствующие поля добиваются дефолтами.
type Reader struct {
	store  Store
	logger *zap.Logger

	// Пороги для деградированного восстановления решения (см. Summary)
	confidenceThreshold float64
	fallbackThreshold   float64
}

func NewReader(store Store, logger *zap.Logger, confidenceThreshold, fallbackThreshold float64) *Reader {
	return &Reader{
		store:               store,
		logger:              logger.Named("trace_reader"),
		confidenceThreshold: confidenceThreshold,
		fallbackThreshold:   fallbackThreshold,
	}
}

// Verbose читает все шаги журнала в порядке step, заполняя дефолты так,
// чтобы клиентская сторона никогда не споткнулась о неполную запись.
func (r *Reader) Verbose(ctx context.Context, transactionID string) (VerboseTrace, error) {
	records, err := r.store.ReadAll(ctx, transactionID)
	if err != nil {
		return VerboseTrace{}, err
	}

	steps := make([]domain.TraceStep, 0, len(records))
	for _, raw := range records {
		var step domain.TraceStep
		if err := json.Unmarshal(raw, &step); err != nil {
			r.logger.Warn("skipping malformed trace record",
				zap.String("transaction_id", transactionID),
				zap.Error(err),
			)
			continue
		}
		applyDefaults(&step, transactionID)
		steps = append(steps, step)
	}

	// Стабильная сортировка: шаги с равными номерами остаются в порядке записи
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })

	return VerboseTrace{TransactionID: transactionID, Steps: steps}, nil
}

// Summary собирает свертку. Авторитетный источник решения — терминальный шаг
// Resolution; если его нет (оборванный журнал), решение восстанавливается
// из confidence последнего шага тем же пороговым каскадом, что и у резолвера.
// Это явный деградированный режим, а не основной контракт.
func (r *Reader) Summary(ctx context.Context, transactionID string) (SummaryTrace, error) {
	verbose, err := r.Verbose(ctx, transactionID)
	if err != nil {
		return SummaryTrace{}, err
	}

	if len(verbose.Steps) == 0 {
		return SummaryTrace{
			TransactionID:       transactionID,
			ComponentsTriggered: []string{},
			FinalDecision:       NoTraceData,
		}, nil
	}

	components := make(map[string]struct{})
	summary := SummaryTrace{TransactionID: transactionID}
	haveTerminal := false

	for _, step := range verbose.Steps {
		components[step.Component] = struct{}{}
		if step.PolicyViolation {
			summary.ViolationsCount++
		}
		if step.IsTerminal() {
			haveTerminal = true
			summary.FinalDecision = step.FinalDecisionStatus
			if step.FinalDecisionConfidence != nil {
				summary.FinalConfidence = *step.FinalDecisionConfidence
			}
		}
	}

	if !haveTerminal {
		last := verbose.Steps[len(verbose.Steps)-1].Confidence
		switch {
		case last > r.confidenceThreshold:
			summary.FinalDecision = domain.StatusFraud
		case last >= r.fallbackThreshold:
			summary.FinalDecision = domain.StatusEscalated
		default:
			summary.FinalDecision = domain.StatusSafe
		}
		summary.FinalConfidence = last
	}

	summary.FinalConfidence = domain.Round2(summary.FinalConfidence)
	summary.ComponentsTriggered = make([]string, 0, len(components))
	for c := range components {
		summary.ComponentsTriggered = append(summary.ComponentsTriggered, c)
	}
	sort.Strings(summary.ComponentsTriggered)

	return summary, nil
}

func applyDefaults(step *domain.TraceStep, transactionID string) {
	if step.TransactionID == "" {
		step.TransactionID = transactionID
	}
	if step.Component == "" {
		step.Component = "Unknown"
	}
	if step.Description == "" {
		step.Description = "No description provided."
	}
	if step.InputData == nil {
		step.InputData = map[string]any{}
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
}
