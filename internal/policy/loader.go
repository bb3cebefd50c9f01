package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/xela07ax/fraudscope-prototype/internal/domain"
	"go.uber.org/zap"
)

// Формат документа правил: JSON-объект rule_id -> {condition, action, reason, confidence}.
// Порядок ключей в файле — это порядок оценки (first match wins), поэтому
// документ читается потоковым декодером: стандартная map порядок бы потеряла.

type ruleBody struct {
	Condition  string   `json:"condition"`
	Action     string   `json:"action"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence"`
}

// LoadRules читает набор правил один раз на старте процесса.
// Отсутствующий или битый документ — это деградация до пустого набора
// с warning в лог, никогда не ошибка старта.
func LoadRules(path string, logger *zap.Logger) []domain.PolicyRule {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("policy document not found, using empty rule set",
			zap.String("path", path), zap.Error(err))
		return nil
	}

	rules, err := parseRules(data)
	if err != nil {
		logger.Warn("policy document malformed, using empty rule set",
			zap.String("path", path), zap.Error(err))
		return nil
	}

	logger.Info("policy rules loaded", zap.String("path", path), zap.Int("count", len(rules)))
	return rules
}

func parseRules(data []byte) ([]domain.PolicyRule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening token: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("policy document must be a JSON object, got %v", tok)
	}

	var rules []domain.PolicyRule
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read rule id: %w", err)
		}
		id, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("rule id must be a string, got %v", keyTok)
		}

		var body ruleBody
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("decode rule %q: %w", id, err)
		}

		rule := domain.PolicyRule{
			ID:         id,
			Condition:  body.Condition,
			Action:     body.Action,
			Reason:     body.Reason,
			Confidence: 0.9,
		}
		if rule.Action == "" {
			rule.Action = "flag"
		}
		if rule.Reason == "" {
			rule.Reason = "Policy violation."
		}
		if body.Confidence != nil {
			rule.Confidence = *body.Confidence
		}
		rules = append(rules, rule)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read closing token: %w", err)
	}
	return rules, nil
}
