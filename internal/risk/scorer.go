package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
)

// Features — фиксированный вектор признаков для классификатора.
// Индикаторы кодируются 0/1, как их видела обученная модель.
type Features struct {
	Amount           float64 `json:"amount"`
	CardTypeVirtual  int     `json:"card_type_virtual"`
	MerchantIsRisky  int     `json:"merchant_is_risky"`
	LocationMismatch int     `json:"location_mismatch"`
}

// BuildFeatures собирает вектор из транзакции и вычисленных флагов.
func BuildFeatures(txn domain.Transaction, flags domain.Flags) Features {
	f := Features{Amount: txn.Amount}
	if txn.CardType == "virtual" {
		f.CardTypeVirtual = 1
	}
	if flags.Merchant {
		f.MerchantIsRisky = 1
	}
	if flags.Location {
		f.LocationMismatch = 1
	}
	return f
}

// Scorer — интерфейс внешнего классификатора. Реализация обязана вернуть
// вероятность [0,1]; любая ошибка поглощается вызывающей стороной в
// нейтральный дефолт 0.5 и никогда не распространяется дальше границы.
type Scorer interface {
	Predict(ctx context.Context, features Features) (float64, error)
}

// HTTPScorer — клиент модели, поднятой отдельным сервисом.
// POST {features} -> {"score": 0.87}
type HTTPScorer struct {
	url    string
	client *http.Client
}

func NewHTTPScorer(url string, client *http.Client) *HTTPScorer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPScorer{url: url, client: client}
}

func (s *HTTPScorer) Predict(ctx context.Context, features Features) (float64, error) {
	body, err := json.Marshal(features)
	if err != nil {
		return 0, fmt.Errorf("scorer: marshal features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("scorer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scorer: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("scorer: decode response: %w", err)
	}
	if out.Score < 0 || out.Score > 1 {
		return 0, fmt.Errorf("scorer: score %.4f out of [0,1]", out.Score)
	}
	return out.Score, nil
}
