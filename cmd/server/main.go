package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"github.com/avvvet/ledgerbuddy/internal/actions"
	"github.com/avvvet/ledgerbuddy/internal/agent"
	"github.com/avvvet/ledgerbuddy/internal/config"
	"github.com/avvvet/ledgerbuddy/internal/handlers"
	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/llm"
	"github.com/avvvet/ledgerbuddy/internal/memory"
	"github.com/avvvet/ledgerbuddy/internal/report"
	"github.com/avvvet/ledgerbuddy/internal/search"
	"github.com/avvvet/ledgerbuddy/internal/tools"
	"github.com/avvvet/ledgerbuddy/internal/transport"
)

func main() {
	// Load .env file if it exists (for development)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}
	logger.Info("🚀 starting ledgerbuddy",
		"service", cfg.ServiceName,
		"nats_url", cfg.NatsURL,
		"provider", cfg.LLMProvider,
		"model", cfg.Model())

	if err := run(cfg, logger); err != nil {
		logger.Error("❌ ledgerbuddy stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("👋 ledgerbuddy stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	catalogue, err := config.LoadCatalogue(cfg.CataloguePath)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite3", cfg.DatabasePath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	store, err := ledger.NewSQLStore(db, cfg.Partitions)
	if err != nil {
		return err
	}
	if err := seedLedger(ctx, store, catalogue); err != nil {
		return err
	}
	logger.Info("💾 ledger ready", "path", cfg.DatabasePath, "partitions", cfg.Partitions)

	kv, err := newContextStore(cfg, logger)
	if err != nil {
		return err
	}
	contexts := memory.NewManager(kv, cfg.InactivityWindow, logger)
	defer contexts.Close()

	model, err := llm.NewModel(cfg)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	provider := llm.NewLangChainProvider(model, kv, cfg.TranscriptLimit, logger)

	nt, err := transport.NewNATSTransport(cfg, logger)
	if err != nil {
		return err
	}
	defer nt.Close()

	engine := search.NewEngine(store, logger)
	reports := report.NewBuilder(store, cfg.IncomePartitions)
	toolset := tools.NewRegistry(store, engine, reports, catalogue.Instructions, logger)
	loop := agent.NewLoop(provider, toolset, contexts, nt, cfg.Partitions, logger)

	registry := actions.NewRegistry(actions.Deps{
		Store:      store,
		Search:     engine,
		Reports:    reports,
		Duplicates: ledger.NewDuplicateDetector(cfg.DuplicateMinOverlap),
		Agent:      loop,
		Logger:     logger,
	})
	dispatcher := handlers.NewDispatcher(registry, logger)
	handler := handlers.NewIntentHandler(provider, dispatcher, store, contexts, logger)

	if err := nt.Start(handler); err != nil {
		return err
	}
	logger.Info("✅ ledgerbuddy is running", "subject", cfg.NatsInboundSubject, "tools", tools.CatalogueVersion)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("🛑 shutting down", "signal", sig.String())
	return nil
}

// newContextStore uses Redis when REDIS_URL is set and an in-process store
// otherwise.
func newContextStore(cfg *config.Config, logger *slog.Logger) (memory.Store, error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, conversation context is kept in memory")
		return memory.NewLocalStore(cfg.ContextTTL), nil
	}
	rs, err := memory.NewRedisStore(cfg.RedisURL, cfg.ServiceName, cfg.ContextTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("✅ redis connected", "ttl", cfg.ContextTTL)
	return rs, nil
}

// seedLedger loads catalogue categories and funds; existing entries are
// left alone.
func seedLedger(ctx context.Context, store *ledger.SQLStore, cat *config.Catalogue) error {
	categories := make([]ledger.Category, 0, len(cat.Categories))
	for _, c := range cat.Categories {
		categories = append(categories, ledger.Category{
			Label:       c.Label,
			Group:       c.Group,
			Description: c.Description,
			Active:      !c.Inactive,
		})
	}
	funds := make([]ledger.Fund, 0, len(cat.Funds))
	for _, f := range cat.Funds {
		balance, err := ledger.ParseAmount(f.Balance)
		if err != nil {
			return fmt.Errorf("fund %q: %w", f.Name, err)
		}
		funds = append(funds, ledger.Fund{Name: f.Name, Type: f.Type, Balance: balance})
	}
	return store.Seed(ctx, categories, funds)
}
