package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/deskflow/orchestrator/internal/adapter/llm"
	"github.com/deskflow/orchestrator/internal/adapter/ticketing"
	"github.com/deskflow/orchestrator/internal/broadcast"
	"github.com/deskflow/orchestrator/internal/config"
	"github.com/deskflow/orchestrator/internal/conversation"
	"github.com/deskflow/orchestrator/internal/domain"
	"github.com/deskflow/orchestrator/internal/identity"
	"github.com/deskflow/orchestrator/internal/orchestrator"
	"github.com/deskflow/orchestrator/internal/session"
	"github.com/deskflow/orchestrator/internal/store"
	handler "github.com/deskflow/orchestrator/internal/transport/http"
	"github.com/deskflow/orchestrator/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting deskflow orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Ticketing URL: %s", cfg.TicketingURL)
	log.Printf("LLM URL: %s", cfg.LLMURL)

	// Initialize durable session mirror
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize ticketing gateway and LLM client
	gateway := ticketing.NewGateway(cfg.TicketingURL, cfg.TicketingAPIKey, cfg.ToolTimeout)
	llmClient := llm.NewLLMClient(cfg.LLMURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	// Identity resolution: backend first, env fallback last.
	resolver := identity.NewChain(
		identity.NewGatewayResolver(gateway),
		identity.NewEnvResolver(),
	)

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Wire session lifecycle, conversation registry and orchestrator.
	// The registry reads the live session through the manager; the
	// closure breaks the construction-order dependency between them.
	broadcaster := broadcast.New()
	var manager *session.Manager
	registry := conversation.NewRegistry(func() *domain.Session {
		if manager == nil {
			return nil
		}
		return manager.LiveSession()
	})
	manager = session.NewManager(db, resolver, registry, broadcaster)

	orch := orchestrator.New(manager, registry, gateway, llmClient, policyEngine, broadcaster, cfg)

	// Backup logout detectors (the cookie signal arrives via POST /v1/signals)
	detectors := session.NewDetectors(manager, gateway, cfg.LivenessInterval, cfg.ProbeInterval)
	detectors.Start()

	// HTTP server
	h := handler.NewHandler(manager, orch, broadcaster)

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	detectors.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}
