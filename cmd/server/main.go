package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AnweshaRoses/Pair-Programmers/internal/api"
	"github.com/AnweshaRoses/Pair-Programmers/internal/config"
	"github.com/AnweshaRoses/Pair-Programmers/internal/db"
	"github.com/AnweshaRoses/Pair-Programmers/internal/logging"
	"github.com/AnweshaRoses/Pair-Programmers/internal/room"
	"github.com/AnweshaRoses/Pair-Programmers/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	database, err := db.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("db.open", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	registry := room.NewRegistry(logger)
	hub := ws.NewHub(registry, database, logger)

	apiHandler := api.New(registry, database, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiHandler.Router(hub, cfg.CORSAllow),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("server.shutdown.start")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
}
