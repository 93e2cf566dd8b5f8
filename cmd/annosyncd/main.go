// Package main provides the annosyncd daemon: a localhost sidecar that keeps
// episode annotations editable offline and reconciles them with the backend.
// The annotation UI talks to it over REST and WebSocket on localhost.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/robolabel/annosync/internal/config"
	"github.com/robolabel/annosync/internal/connectivity"
	"github.com/robolabel/annosync/internal/db"
	"github.com/robolabel/annosync/internal/logging"
	"github.com/robolabel/annosync/internal/models"
	syncengine "github.com/robolabel/annosync/internal/sync"
	"github.com/robolabel/annosync/internal/sync/conflict"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))

	// Local record store
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Setup(database.DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	// Connectivity probe against the backend health endpoint
	observer := connectivity.NewProbeObserver(connectivity.ProbeConfig{
		URL:      cfg.BackendURL + "/api/health",
		Interval: cfg.ProbeInterval,
	})
	observer.Start(ctx)
	defer observer.Stop()

	// Sync engine
	transport := syncengine.NewHTTPTransport(syncengine.HTTPTransportConfig{
		BaseURL: cfg.BackendURL,
		Token:   cfg.APIToken,
	})
	processor := syncengine.NewProcessor(repo, transport, observer,
		syncengine.WithItemDelay(cfg.ItemDelay))
	manager := syncengine.NewManager(processor, observer,
		syncengine.WithInterval(cfg.SyncInterval))
	resolver := conflict.NewResolver(repo)

	// UI event hub
	hub := NewWSHub()
	manager.AddListener(func(result *syncengine.SyncResult) {
		hub.BroadcastSyncResult(result)

		conflicts, err := repo.ListRecordsByStatus(models.SyncStatusConflict)
		if err != nil || len(conflicts) == 0 {
			return
		}
		ids := make([]string, 0, len(conflicts))
		for _, record := range conflicts {
			ids = append(ids, record.ID.String())
		}
		hub.BroadcastConflicts(ids)
	})
	observer.OnOnline(func() {
		hub.BroadcastOnline(true)
	})

	manager.Start(ctx)
	defer manager.Stop()

	// Localhost API
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	api := NewAPIHandler(repo, manager, resolver)
	api.Routes(router)
	router.Get("/ws", HandleWebSocket(hub))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logging.Info("Shutting down annosyncd", nil)
		cancel() // aborts an in-flight sync cycle

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	logging.Info("annosyncd listening",
		map[string]interface{}{
			"addr":    cfg.ListenAddr,
			"backend": cfg.BackendURL,
		})

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	logging.Info("annosyncd stopped", nil)
}
