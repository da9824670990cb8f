package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/huddlechat/huddle/internal/server"
)

func main() {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	registry := server.NewRegistry(cfg)
	hub := server.NewHub(cfg, registry)
	go hub.Run()

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(cfg.Port, mux)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutdown signal received")
		if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
		if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
			log.Printf("Hub shutdown: %v", err)
		}
	}
}
