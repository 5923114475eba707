// Command seed runs a short scripted conversation through the engine on
// the in-memory stores and prints the resulting transcript. Useful as a
// smoke test of the full turn loop without a database or API keys.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"engram/internal/config"
	"engram/internal/engine"
	"engram/internal/engine/actions"
	"engram/internal/engine/prompt"
	"engram/internal/engine/pruner"
	"engram/internal/engine/sessions"
	"engram/internal/engine/tiering"
	"engram/internal/engine/tokens"
	"engram/internal/repository/memstore"
	"engram/internal/service/chat"
	"engram/internal/service/providers"
	"engram/internal/service/providers/lorem"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := config.Load()

	tiers := memstore.NewTierStore()
	facts := memstore.NewFactStore()
	episodes := memstore.NewEpisodicStore()
	sessionStore := memstore.NewSessionStore()

	registry := providers.NewRegistry()
	registry.Register(lorem.NewProvider())

	templates, err := prompt.LoadTemplates()
	if err != nil {
		log.Fatalf("load templates: %v", err)
	}
	estimator := tokens.HeuristicEstimator{}

	factory := func(userID, sessionID string) *engine.Orchestrator {
		return engine.NewOrchestrator(userID, sessionID, engine.Config{
			Tiers:     tiers,
			Sessions:  sessionStore,
			Facts:     facts,
			Generator: tiering.NewGenerator(registry, "lorem-tier", logger),
			Builder:   prompt.NewBuilder(templates, estimator, cfg.PromptTokenBudget),
			Handler: actions.NewHandler(actions.Config{
				Tiers:    tiers,
				Episodes: episodes,
				Facts:    facts,
				Logger:   logger,
			}),
			Pruner: pruner.NewPruner(pruner.Config{
				Tiers:     tiers,
				Episodes:  episodes,
				Estimator: estimator,
				Budget:    cfg.PromptTokenBudget,
				KeepFloor: cfg.TurnKeepFloor,
				Logger:    logger,
			}),
			Registry:     registry,
			Model:        "lorem-fast",
			MaxLoop:      cfg.MaxLoop,
			CallTimeout:  10 * time.Second,
			TurnDeadline: 30 * time.Second,
			Logger:       logger,
		})
	}
	manager := sessions.NewManager(factory, cfg.SessionIdleTTL, logger)
	svc := chat.NewService(manager, sessionStore, tiers, episodes, memstore.NewTransactionManager(), logger)

	ctx := context.Background()
	userID := "seed-user"

	messages := []string{
		"Hi! My name is Jordan and I keep bees.",
		"What should I do about mites in the hive this autumn?",
		"Thanks. Remind me, what did I say my hobby was?",
	}

	sessionID := chat.NewSessionID
	for _, msg := range messages {
		resp, err := svc.ChatTurn(ctx, userID, &chat.ChatRequest{SessionID: sessionID, Message: msg})
		if err != nil {
			log.Fatalf("chat turn: %v", err)
		}
		sessionID = resp.SessionID
		fmt.Printf("user> %s\n", msg)
		fmt.Printf("assistant [%s]> %s\n\n", resp.Status, resp.Answer)
	}

	history, err := svc.GetHistory(ctx, userID, sessionID)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	fmt.Printf("session %s has %d turns\n", sessionID, len(history))
}
