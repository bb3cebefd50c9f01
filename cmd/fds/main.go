package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xela07ax/fraudscope-prototype/internal/console/handler"
	"github.com/xela07ax/fraudscope-prototype/internal/console/service"
	"github.com/xela07ax/fraudscope-prototype/internal/engine"
	"github.com/xela07ax/fraudscope-prototype/internal/infra"
	"github.com/xela07ax/fraudscope-prototype/internal/infra/auth"
	"github.com/xela07ax/fraudscope-prototype/internal/journal"
	"github.com/xela07ax/fraudscope-prototype/internal/narrative"
	"github.com/xela07ax/fraudscope-prototype/internal/policy"
	"github.com/xela07ax/fraudscope-prototype/internal/repository/postgres"
	"github.com/xela07ax/fraudscope-prototype/internal/risk"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.Logger)
	defer logger.Sync()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 3. Бэкенд трейс-журнала (file | redis | postgres)
	store := buildJournalStore(cfg, logger)
	jrnl := journal.NewJournal(store, logger, metrics.JournalWriteErrors)
	reader := journal.NewReader(store, logger, cfg.Thresholds.Confidence, cfg.Thresholds.Fallback)

	// 4. Набор правил: читается один раз, дальше read-only
	rules := policy.LoadRules(cfg.Rules.Path, logger)
	policyEngine := policy.NewEngine(rules, cfg.Thresholds, jrnl, logger)

	// 5. Внешний скоринг за контуром надежности (CB + rate limit + timeout)
	var scorer risk.Scorer
	if cfg.Scorer.URL != "" {
		httpScorer := risk.NewHTTPScorer(cfg.Scorer.URL, &http.Client{Timeout: cfg.Scorer.Timeout})
		scorer = risk.NewReliableScorer(httpScorer, cfg.Scorer, func(open bool) {
			if open {
				metrics.ScorerBreakerState.Set(1)
			} else {
				metrics.ScorerBreakerState.Set(0)
			}
		})
		logger.Info("risk scorer enabled", zap.String("url", cfg.Scorer.URL))
	} else {
		logger.Warn("risk scorer not configured, runs will use the default score")
	}

	// 6. Сборка ядра пайплайна
	narrator := narrative.NewLLMGenerator(cfg.Narrative, nil, jrnl, logger)
	gate := engine.NewFallbackGate(cfg.Thresholds.Confidence, jrnl)
	signals := risk.NewSignalExtractor(cfg.Thresholds, jrnl, logger)
	pipeline := engine.NewPipeline(cfg.Thresholds, gate, signals, scorer, policyEngine, narrator, jrnl, metrics, logger)

	// 7. Консоль: слои handler -> service -> ядро
	decisionService := service.NewDecisionService(pipeline, reader)
	decisionHandler := handler.NewDecisionHandler(decisionService)

	r := chi.NewRouter()
	v1 := decisionHandler.Routes()
	if len(cfg.Auth.PublicKey) > 0 {
		pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("invalid console public key", zap.Error(err))
		}
		mw := auth.NewMiddleware(auth.NewBaseValidator(pubKey), logger)
		protected := chi.NewRouter()
		protected.Use(mw)
		protected.Mount("/", v1)
		r.Mount("/v1", protected)
	} else {
		r.Mount("/v1", v1)
	}

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(cfg.Server.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("FDS started",
			zap.String("addr", srv.Addr),
			zap.String("journal_backend", cfg.Journal.Backend),
			zap.Int("policy_rules", policyEngine.RuleCount()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("FDS stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("FDS exited properly")
}

// buildJournalStore выбирает бэкенд журнала по конфигу.
// Недоступность бэкенда — фатальная ошибка старта: без журнала сервис
// бесполезен как аудиторский инструмент.
func buildJournalStore(cfg *infra.Config, logger *zap.Logger) journal.Store {
	switch cfg.Journal.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis unreachable", zap.Error(err))
		}
		return journal.NewRedisStore(rdb)

	case "postgres":
		repo, err := postgres.NewTraceRepo(cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal("postgres open failed", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Ping(ctx); err != nil {
			logger.Fatal("postgres unreachable", zap.Error(err))
		}
		return repo

	case "memory":
		// Только для локальной разработки: журнал живет до перезапуска
		logger.Warn("in-memory journal backend selected, traces are not persisted")
		return journal.NewMemoryStore()

	default:
		store, err := journal.NewFileStore(cfg.Journal.Dir, cfg.Journal.FileExt)
		if err != nil {
			logger.Fatal("journal directory unavailable", zap.Error(err))
		}
		return store
	}
}
