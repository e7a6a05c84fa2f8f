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

	"chatrelay/api"
	"chatrelay/auth"
	"chatrelay/config"
	"chatrelay/hub"
	"chatrelay/provider"
	"chatrelay/store"
	"chatrelay/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting chatrelay...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Provider URL: %s", cfg.ProviderURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize provider client
	providerClient := provider.NewClient(cfg.ProviderURL, cfg.ProviderAPIKey,
		cfg.ProviderModel, cfg.ProviderMaxTokens, cfg.ProviderTimeout)

	// Initialize identity resolution
	resolver := &auth.StoreResolver{Sessions: db}

	// Initialize feed fan-out
	h := hub.NewHub()
	go h.Run()

	wsServer := ws.NewServer(cfg, h, db, resolver)
	feedCtx, feedCancel := context.WithCancel(context.Background())
	defer feedCancel()
	go wsServer.Run(feedCtx)

	// Initialize handlers
	handler := api.NewHandler(db, providerClient, cfg)

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(auth.Middleware(resolver))

	// Routes
	handler.RegisterRoutes(e)
	e.GET("/ws", wsServer.HandleWebSocket)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Relay started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down chatrelay...")

	feedCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Relay stopped")
}
