package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apihttp "github.com/chadiek/sales-trainer/api/http"
	"github.com/chadiek/sales-trainer/internal/config"
	"github.com/chadiek/sales-trainer/internal/httpserver"
	"github.com/chadiek/sales-trainer/internal/infra/storage"
	"github.com/chadiek/sales-trainer/internal/scoring"
	"github.com/chadiek/sales-trainer/internal/trainer"
	"github.com/chadiek/sales-trainer/internal/ws"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	var store trainer.SummaryStore
	supa, err := storage.New(storage.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseKey,
		Bucket:         cfg.SupabaseBucket,
	})
	if err != nil {
		log.Printf("summary storage disabled: %v", err)
	} else {
		store = supa
	}

	scorer := scoring.NewClient(cfg.ScoringAPIURL, cfg.ScoringAPIKey)
	manager := trainer.NewManager(scorer, store, trainer.DefaultConfig())
	wsHandler := ws.NewHandler(manager, cfg.WSAuthPassword)

	e := httpserver.New()
	apihttp.NewHandlers(manager, wsHandler).Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	// End live sessions first so their timers cannot fire into a dead server.
	manager.EndAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
