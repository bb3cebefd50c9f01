package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса Fraud Decision Service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Scorer     ScorerConfig     `mapstructure:"scorer"`
	Narrative  NarrativeConfig  `mapstructure:"narrative"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера консоли.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
}

// JournalConfig выбирает бэкенд трейс-журнала.
// Контракт один: упорядоченное key-partitioned append-only хранилище.
type JournalConfig struct {
	Backend string `mapstructure:"backend"` // file, redis, postgres
	Dir     string `mapstructure:"dir"`     // для file-бэкенда
	FileExt string `mapstructure:"file_ext"`
}

// RedisConfig описывает подключение к Redis (бэкенд журнала).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig описывает подключение к PostgreSQL (бэкенд журнала).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// RulesConfig указывает на декларативный документ правил комплаенса.
// Отсутствие или битый файл — не фатальная ошибка, движок стартует с пустым набором.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// ThresholdsConfig — калибровочные константы решающего каскада.
type ThresholdsConfig struct {
	Confidence         float64  `mapstructure:"confidence"`           // выше — fraud по чистому скору
	Fallback           float64  `mapstructure:"fallback"`             // [fallback, confidence) — ручная проверка
	VirtualCardLimit   float64  `mapstructure:"virtual_card_limit"`   // лимит для виртуальных карт
	HighValue          float64  `mapstructure:"high_value"`           // порог high-value транзакции
	ExtremelyHighValue float64  `mapstructure:"extremely_high_value"` // порог для политик экстремальных сумм
	RiskyMerchants     []string `mapstructure:"risky_merchants"`
}

// ScorerConfig — настройки внешнего ML-классификатора и его контура надежности.
type ScorerConfig struct {
	URL     string        `mapstructure:"url"` // пусто — скоринг выключен, работаем на дефолте
	Timeout time.Duration `mapstructure:"timeout"`

	// Circuit Breaker + Rate Limiter, как для внешних коннекторов
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

// NarrativeConfig — настройки LLM-коллаборатора, генерирующего нарратив.
type NarrativeConfig struct {
	URL          string        `mapstructure:"url"`
	APIKey       string        `mapstructure:"api_key"` // читается из ENV NARRATIVE_API_KEY
	Model        string        `mapstructure:"model"`
	MaxRetries   uint          `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// AuthConfig содержит публичный ключ для проверки Bearer-токенов консоли.
// Если ключ не задан — консоль открыта (локальный/dev режим).
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: JOURNAL_BACKEND=redis перекроет journal.backend
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла. Если файла нет — работаем на ENV и дефолтах.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключ либо напрямую в ENV (Docker/K8s), либо файлом по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.metrics_addr", ":9090")

	v.SetDefault("journal.backend", "file")
	v.SetDefault("journal.dir", "trace_logs")
	v.SetDefault("journal.file_ext", ".jsonl")

	v.SetDefault("rules.path", "policies/fraud_rules.json")

	v.SetDefault("thresholds.confidence", 0.85)
	v.SetDefault("thresholds.fallback", 0.60)
	v.SetDefault("thresholds.virtual_card_limit", 3000.0)
	v.SetDefault("thresholds.high_value", 5000.0)
	v.SetDefault("thresholds.extremely_high_value", 100000.0)
	v.SetDefault("thresholds.risky_merchants", []string{"fraud_kirlin", "shady_importsng", "unverified_gadgetx"})

	v.SetDefault("scorer.timeout", 3*time.Second)
	v.SetDefault("scorer.rate_limit", 100.0)
	v.SetDefault("scorer.rate_burst", 20)
	v.SetDefault("scorer.cb_max_requests", 3)
	v.SetDefault("scorer.cb_interval", 5*time.Second)
	v.SetDefault("scorer.cb_timeout", 30*time.Second)

	v.SetDefault("narrative.model", "llama3-8b-8192")
	v.SetDefault("narrative.max_retries", 5)
	v.SetDefault("narrative.initial_delay", 1*time.Second)
	v.SetDefault("narrative.timeout", 20*time.Second)

	v.SetDefault("database.max_conns", 15)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource — ключ либо лежит целиком в ENV, либо читается файлом.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
