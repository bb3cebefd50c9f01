package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
	"go.uber.org/zap"
)

// Номера стадий сигналов в трейсе прогона.
const (
	stepAmount   = 2
	stepLocation = 3
	stepMerchant = 4
)

// Калибровочные confidence детерминированных чекеров. Это константы
// калибровки, а не вычисляемые значения.
const (
	confVirtualLimit = 0.75
	confHighValue    = 0.80
	confLocation     = 0.88
	confMerchant     = 0.91
)

// SignalExtractor — три независимых детерминированных проверки транзакции.
// Каждая срабатывающая проверка оставляет шаг в трейс-журнале.
type SignalExtractor struct {
	thresholds infra.ThresholdsConfig
	risky      map[string]struct{}
	journal    *journal.Journal
	logger     *zap.Logger
}

func NewSignalExtractor(thresholds infra.ThresholdsConfig, jrnl *journal.Journal, logger *zap.Logger) *SignalExtractor {
	risky := make(map[string]struct{}, len(thresholds.RiskyMerchants))
	for _, m := range thresholds.RiskyMerchants {
		risky[strings.ToLower(m)] = struct{}{}
	}
	return &SignalExtractor{
		thresholds: thresholds,
		risky:      risky,
		journal:    jrnl,
		logger:     logger.Named("signals"),
	}
}

// Extract вычисляет флаги один раз за прогон. Транзакция должна быть
// нормализована (Normalized) до вызова.
func (s *SignalExtractor) Extract(ctx context.Context, txn domain.Transaction) domain.Flags {
	var flags domain.Flags

	// Amount: ветка виртуальной карты первична и имеет собственное сообщение
	switch {
	case txn.CardType == "virtual" && txn.Amount > s.thresholds.VirtualCardLimit:
		flags.Amount = true
		s.journal.Record(ctx, domain.TraceStep{
			TransactionID: txn.TransactionID,
			Step:          stepAmount,
			Component:     domain.ComponentAmount,
			InputData:     map[string]any{"amount": txn.Amount, "card_type": txn.CardType},
			Description:   fmt.Sprintf("Amount ($%.2f) exceeds limit (%.2f) for virtual card.", txn.Amount, s.thresholds.VirtualCardLimit),
			Confidence:    confVirtualLimit,
		})
	case txn.Amount > s.thresholds.HighValue:
		flags.Amount = true
		s.journal.Record(ctx, domain.TraceStep{
			TransactionID: txn.TransactionID,
			Step:          stepAmount,
			Component:     domain.ComponentAmount,
			InputData:     map[string]any{"amount": txn.Amount},
			Description:   fmt.Sprintf("High-value transaction ($%.2f) detected.", txn.Amount),
			Confidence:    confHighValue,
		})
	}

	// Location: точное сравнение строк без геодистанций
	if txn.UserLocation != txn.MerchantLocation {
		flags.Location = true
		s.journal.Record(ctx, domain.TraceStep{
			TransactionID: txn.TransactionID,
			Step:          stepLocation,
			Component:     domain.ComponentLocation,
			InputData:     map[string]any{"user_loc": txn.UserLocation, "merchant_loc": txn.MerchantLocation},
			Description:   "Cross-border transaction detected.",
			Confidence:    confLocation,
		})
	}

	// Merchant: членство в конфигурируемом списке рискованных мерчантов
	if _, ok := s.risky[txn.Merchant]; ok {
		flags.Merchant = true
		s.journal.Record(ctx, domain.TraceStep{
			TransactionID: txn.TransactionID,
			Step:          stepMerchant,
			Component:     domain.ComponentMerchant,
			InputData:     map[string]any{"merchant": txn.Merchant},
			Description:   "Merchant identified as high-risk.",
			Confidence:    confMerchant,
		})
	}

	return flags
}
