package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/VittorioRossetto/dogTrainer/internal/config"
	"github.com/VittorioRossetto/dogTrainer/internal/correlate"
	"github.com/VittorioRossetto/dogTrainer/internal/retry"
	"github.com/VittorioRossetto/dogTrainer/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var store storage.EventWriter = storage.Discard{}
	if cfg.Influx.Enabled() {
		influx := storage.NewInflux(cfg.Influx)
		defer influx.Close()
		store = influx
		log.Printf("influx sink enabled: %s bucket=%s", cfg.Influx.URL, cfg.Influx.Bucket)

		// Read-side API is only meaningful with a real store behind it.
		srv := &http.Server{
			Addr:              cfg.Collector.APIAddr,
			Handler:           storage.NewAPIRouter(influx),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			log.Printf("collector api listening on %s", cfg.Collector.APIAddr)
			if err := runServer(ctx, srv); err != nil {
				log.Printf("collector api error: %v", err)
			}
		}()
	} else {
		log.Println("INFLUX_TOKEN not set; events will not be persisted")
	}

	engine := correlate.New(cfg.Collector.HubWSURL, retry.Fixed(cfg.Collector.ReconnectInterval), store)
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("collector error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
