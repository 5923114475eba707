package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"engram/internal/auth"
	"engram/internal/config"
	"engram/internal/domain/repositories"
	memRepo "engram/internal/domain/repositories/memory"
	"engram/internal/engine"
	"engram/internal/engine/actions"
	"engram/internal/engine/prompt"
	"engram/internal/engine/pruner"
	"engram/internal/engine/sessions"
	"engram/internal/engine/tiering"
	"engram/internal/engine/tokens"
	"engram/internal/handler"
	"engram/internal/middleware"
	"engram/internal/repository/memstore"
	"engram/internal/repository/postgres"
	postgresMemory "engram/internal/repository/postgres/memory"
	"engram/internal/service/chat"
	"engram/internal/service/providers"
	"engram/internal/service/providers/anthropic"
	"engram/internal/service/providers/lorem"
	"engram/internal/service/search"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

type stores struct {
	tiers    memRepo.TierStore
	episodes memRepo.EpisodicStore
	facts    memRepo.FactStore
	sessions memRepo.SessionStore
	tx       repositories.TransactionManager
}

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	logOutput := io.Writer(os.Stdout)
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"model", cfg.DefaultModel,
	)

	ctx := context.Background()

	// Storage backend: Postgres when DATABASE_URL is set, in-memory
	// otherwise.
	var st stores
	if cfg.DatabaseURL != "" {
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: postgres.NewTableNames(cfg.TablePrefix),
			Logger: logger,
		}
		if err := postgres.EnsureSchema(ctx, pool, repoConfig.Tables, cfg.TablePrefix); err != nil {
			log.Fatalf("Failed to ensure database schema: %v", err)
		}
		st = stores{
			tiers:    postgresMemory.NewTierStore(repoConfig),
			episodes: postgresMemory.NewEpisodicStore(repoConfig),
			facts:    postgresMemory.NewFactStore(repoConfig),
			sessions: postgresMemory.NewSessionStore(repoConfig),
			tx:       postgres.NewTransactionManager(pool),
		}
		logger.Info("database connected", "table_prefix", cfg.TablePrefix)
	} else {
		st = stores{
			tiers:    memstore.NewTierStore(),
			episodes: memstore.NewEpisodicStore(),
			facts:    memstore.NewFactStore(),
			sessions: memstore.NewSessionStore(),
			tx:       memstore.NewTransactionManager(),
		}
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	// Model providers
	registry := providers.NewRegistry()
	if cfg.AnthropicAPIKey != "" {
		anthropicProvider, err := anthropic.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			log.Fatalf("Failed to create Anthropic provider: %v", err)
		}
		registry.Register(anthropicProvider)
		logger.Info("provider registered", "provider", "anthropic")
	}
	registry.Register(lorem.NewProvider())

	// Search collaborator
	var searchClient search.SearchClient
	if cfg.TavilyAPIKey != "" {
		searchClient = search.NewTavilyClient(cfg.TavilyAPIKey)
		logger.Info("search client configured", "provider", "tavily")
	} else if cfg.SearchEnabled {
		logger.Warn("SEARCH_ENABLED set but TAVILY_API_KEY missing, search directives will be ignored")
	}

	templates, err := prompt.LoadTemplates()
	if err != nil {
		log.Fatalf("Failed to load prompt templates: %v", err)
	}

	estimator := tokens.NewEstimator(logger)
	generator := tiering.NewGenerator(registry, cfg.TierModel, logger)
	builder := prompt.NewBuilder(templates, estimator, cfg.PromptTokenBudget)
	actionHandler := actions.NewHandler(actions.Config{
		Tiers:         st.tiers,
		Episodes:      st.episodes,
		Facts:         st.facts,
		SearchClient:  searchClient,
		SearchEnabled: cfg.SearchEnabled,
		EpisodicK:     cfg.EpisodicK,
		Logger:        logger,
	})
	prn := pruner.NewPruner(pruner.Config{
		Tiers:     st.tiers,
		Episodes:  st.episodes,
		Estimator: estimator,
		Budget:    cfg.PromptTokenBudget,
		KeepFloor: cfg.TurnKeepFloor,
		Logger:    logger,
	})

	factory := func(userID, sessionID string) *engine.Orchestrator {
		return engine.NewOrchestrator(userID, sessionID, engine.Config{
			Tiers:        st.tiers,
			Sessions:     st.sessions,
			Facts:        st.facts,
			Generator:    generator,
			Builder:      builder,
			Handler:      actionHandler,
			Pruner:       prn,
			Registry:     registry,
			Model:        cfg.DefaultModel,
			MaxLoop:      cfg.MaxLoop,
			CallTimeout:  cfg.CallTimeout,
			TurnDeadline: cfg.TurnDeadline,
			Logger:       logger,
		})
	}
	manager := sessions.NewManager(factory, cfg.SessionIdleTTL, logger)
	manager.StartEviction(ctx, cfg.SessionIdleTTL/2)

	chatService := chat.NewService(manager, st.sessions, st.tiers, st.episodes, st.tx, logger)
	chatHandler := handler.NewChatHandler(chatService, logger)

	logger.Info("services initialized")

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", chatHandler.HealthCheck)

	mux.HandleFunc("POST /api/chat", chatHandler.ChatTurn)
	mux.HandleFunc("GET /api/sessions", chatHandler.ListSessions)
	mux.HandleFunc("GET /api/sessions/{id}/history", chatHandler.GetHistory)
	mux.HandleFunc("DELETE /api/sessions/{id}", chatHandler.DeleteSession)

	// Middleware chain, applied in reverse order: CORS → Recovery → Auth
	var httpHandler http.Handler = mux

	if cfg.JWKSURL != "" {
		jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer jwtVerifier.Close()
		httpHandler = middleware.AuthMiddleware(jwtVerifier)(httpHandler)
	} else {
		if cfg.Environment == "prod" {
			log.Fatal("JWKS_URL is required in prod")
		}
		logger.Warn("JWKS_URL not set, using stub auth", "user_id", cfg.DevUserID)
		httpHandler = middleware.StubAuth(cfg.DevUserID)(httpHandler)
	}

	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - before auth so OPTIONS pre-flight requests pass
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TurnDeadline + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
