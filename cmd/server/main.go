// Command server starts the secscan HTTP API.
// Usage: go run ./cmd/server [port]
// Default port: 8080, or $PORT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/raysh454/secscan/internal/app"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/server"
)

func init() {
	// loads values from .env into the process environment
	if err := godotenv.Load(); err != nil {
		log.Print("No .env file found")
	}
}

func main() {
	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 || v > 65535 {
			log.Fatalf("Invalid PORT: %s", p)
		}
		port = v
	}

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		v, err := strconv.Atoi(os.Args[1])
		if err != nil || v < 1 || v > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		port = v
	}

	cfg := app.DefaultConfig()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	logger := logging.NewStdoutLogger("secscan-server")
	s, err := server.NewServer(server.Config{
		ListenAddr: fmt.Sprintf(":%d", port),
		AppConfig:  cfg,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}

	srv := s.HTTPServer()
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.F("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Close()
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		logger.Info("shutting down", logging.F("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown", logging.Err(err))
		}
	}
	s.Close()
}
