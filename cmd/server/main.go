package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"echoboard/internal/board"
	"echoboard/internal/config"
	"echoboard/internal/metrics"
	"echoboard/internal/server"
	"echoboard/internal/store"
)

func main() {
	// A missing .env just means the environment is already set up.
	_ = godotenv.Load()

	cfg := config.FromEnv()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store at %s: %v", cfg.DBPath, err)
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	writer := store.NewWriter(st, cfg.WriteQueueSize, collector)

	registry := board.NewRegistry(st, writer, collector, board.Config{
		HeartbeatTimeout:    cfg.HeartbeatTimeout,
		SweepInterval:       cfg.SweepInterval,
		InactivityTTL:       cfg.BoardTTL,
		ExpirySweepInterval: cfg.ExpirySweepInterval,
		HistoryLimit:        cfg.HistoryLimit,
	})

	srv := server.New(cfg, registry, collector.Handler())
	httpServer := server.CreateServer(cfg.Addr, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Printf("shutdown: %v", err)
	}
	registry.Shutdown()
	writer.Close()
	if err := st.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}
