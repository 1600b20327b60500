// Command varstated serves the reference remote session service over HTTP
// so bridged backends in other processes have something to migrate onto.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/tailored-agentic-units/varstate/observability"
	"github.com/tailored-agentic-units/varstate/remote"
	"github.com/tailored-agentic-units/varstate/variables"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:8955", "Listen address for the session service")
		verbose = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	svc := remote.NewMemoryService(variables.NewRegistry())
	server := &http.Server{
		Addr:    *addr,
		Handler: remote.NewHandler(svc),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("session service listening", "addr", *addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Shutdown failed: %v", err)
		}
		fmt.Println("session service stopped")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Serve failed: %v", err)
		}
	}
}
