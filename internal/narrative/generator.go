package narrative

/*
Пакет narrative — клиент внешнего LLM-коллаборатора, объясняющего решение
человеческим языком. Коллаборатор необязателен и ненадежен по определению:
исчерпав бюджет ретраев с экспоненциальным бэкоффом, генератор деградирует
до фиксированной строки-извинения и никогда не роняет оркестратор.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
	"go.uber.org/zap"
)

// Номер стадии нарратива в трейсе прогона.
const narrativeStep = 7

// Apology — фиксированный текст, когда LLM недоступен после всех ретраев.
const Apology = "Could not generate narrative due to an upstream error."

// Disabled — текст, когда генерация не сконфигурирована.
const Disabled = "Narrative generation is not configured."

// Generator объясняет итог прогона. Реализации не возвращают ошибок:
// сбой генерации — это деградация текста, не сбой решения.
type Generator interface {
	Explain(ctx context.Context, txn domain.Transaction, flags domain.Flags, policyResult domain.PolicyResult) string
}

// LLMGenerator ходит в OpenAI-совместимый chat completions endpoint.
type LLMGenerator struct {
	cfg     infra.NarrativeConfig
	client  *http.Client
	journal *journal.Journal
	logger  *zap.Logger
}

func NewLLMGenerator(cfg infra.NarrativeConfig, client *http.Client, jrnl *journal.Journal, logger *zap.Logger) *LLMGenerator {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &LLMGenerator{
		cfg:     cfg,
		client:  client,
		journal: jrnl,
		logger:  logger.Named("narrative"),
	}
}

func (g *LLMGenerator) Explain(ctx context.Context, txn domain.Transaction, flags domain.Flags, policyResult domain.PolicyResult) string {
	reasons := collectReasons(txn, flags, policyResult)
	prompt := buildPrompt(txn, reasons)

	text := Disabled
	if g.cfg.URL != "" {
		text = g.callLLM(ctx, prompt)
	}

	// Вход и выход LLM фиксируются в трейсе для последующего аудита
	g.journal.Record(ctx, domain.TraceStep{
		TransactionID: txn.TransactionID,
		Step:          narrativeStep,
		Component:     domain.ComponentNarrative,
		InputData: map[string]any{
			"prompt_to_llm": prompt,
			"flags_for_llm": reasons,
		},
		Description: text,
		Confidence:  0.95,
	})

	return text
}

// callLLM — HTTP-вызов с ограниченным бюджетом ретраев и экспоненциальным
// бэкоффом. Никогда не возвращает ошибку наружу — только текст.
func (g *LLMGenerator) callLLM(ctx context.Context, prompt string) string {
	var text string

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(g.cfg.MaxRetries),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			delay := g.cfg.InitialDelay * time.Duration(1<<n)
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			return delay
		}),
	)

	err := r.Do(func() error {
		tCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		var callErr error
		text, callErr = g.doRequest(tCtx, prompt)
		return callErr
	})
	if err != nil {
		g.logger.Warn("narrative generation failed after retries", zap.Error(err))
		return Apology
	}
	return text
}

func (g *LLMGenerator) doRequest(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a concise and professional financial assistant who explains fraud detection results."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.7,
		"max_tokens":  200,
		"stream":      false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("narrative: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("narrative: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("narrative: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("narrative: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("narrative: decode response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("narrative: empty completion")
	}
	return out.Choices[0].Message.Content, nil
}

func collectReasons(txn domain.Transaction, flags domain.Flags, policyResult domain.PolicyResult) []string {
	var reasons []string
	if flags.Amount {
		reasons = append(reasons, fmt.Sprintf("- High-value payment: $%.2f using a %s card.", txn.Amount, txn.CardType))
	}
	if flags.Location {
		reasons = append(reasons, fmt.Sprintf("- Cross-border transaction: from %s to %s.", txn.UserLocation, txn.MerchantLocation))
	}
	if flags.Merchant {
		reasons = append(reasons, fmt.Sprintf("- High-risk merchant detected: %s.", txn.Merchant))
	}
	if policyResult.Violated {
		reasons = append(reasons, fmt.Sprintf("- Policy Violation: Policy %s was violated. Reason: '%s'.", policyResult.PolicyID, policyResult.Reason))
	}
	if txn.InitialFallbackReason != "" {
		reasons = append(reasons, fmt.Sprintf("- Initial data missing/invalid: %s.", txn.InitialFallbackReason))
	}
	return reasons
}

func buildPrompt(txn domain.Transaction, reasons []string) string {
	if len(reasons) == 0 {
		return fmt.Sprintf(
			"The following financial transaction passed all fraud checks and no unusual patterns were detected. "+
				"Please generate a concise (2-3 sentences) and reassuring narrative explaining this. "+
				"Do not include a conversational opening or closing. Focus on clarity and professionalism.\n\n"+
				"Transaction details: ID %s, Amount $%.2f, Card Type %s, User Location %s, Merchant %s, Merchant Location %s.",
			txn.TransactionID, txn.Amount, txn.CardType, txn.UserLocation, txn.Merchant, txn.MerchantLocation,
		)
	}

	var reasonsText bytes.Buffer
	for i, r := range reasons {
		if i > 0 {
			reasonsText.WriteByte('\n')
		}
		reasonsText.WriteString(r)
	}

	return fmt.Sprintf(
		"A financial transaction has been processed and requires an explainable narrative. "+
			"Based on the following flags and details, generate a concise (2-3 sentences), professional, "+
			"and clear explanation of why this transaction was flagged or what unusual patterns were detected. "+
			"Focus on the 'why' and provide actionable insights if possible. "+
			"Do not include a conversational opening or closing.\n\n"+
			"Transaction ID: %s\nAmount: $%.2f\nCard Type: %s\nUser Location: %s\nMerchant: %s\nMerchant Location: %s\n\n"+
			"Triggered Reasons/Flags:\n%s\n\nNarrative:",
		txn.TransactionID, txn.Amount, txn.CardType, txn.UserLocation, txn.Merchant, txn.MerchantLocation,
		reasonsText.String(),
	)
}
