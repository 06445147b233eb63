// Package server parses server command flags and starts the authoritative
// gate service: story content, sqlite journal, gate, timer sweep, HTTP API.
package server

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	httpapi "github.com/laborio/questing-together/internal/api/http"
	entrypoint "github.com/laborio/questing-together/internal/platform/cmd"
	"github.com/laborio/questing-together/internal/storage/sqlite"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/gate"
)

// Config holds server command configuration.
type Config struct {
	Port          int           `env:"QUESTING_PORT" envDefault:"8080"`
	Addr          string        `env:"QUESTING_ADDR"`
	StoryPath     string        `env:"QUESTING_STORY_PATH" envDefault:"story.json"`
	DBPath        string        `env:"QUESTING_DB_PATH" envDefault:"questing.db"`
	SweepInterval time.Duration `env:"QUESTING_SWEEP_INTERVAL" envDefault:"1s"`
}

// ParseConfig parses environment and flags into a Config. A .env file in the
// working directory is loaded first when present.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The server listen address (overrides -port)")
	fs.StringVar(&cfg.StoryPath, "story", cfg.StoryPath, "Path to the story content document")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the sqlite database")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Timer sweep interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the authoritative gate service and blocks until ctx is canceled
// or the listener fails.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(ctx context.Context) error {
		data, err := os.ReadFile(cfg.StoryPath)
		if err != nil {
			return fmt.Errorf("read story content: %w", err)
		}
		story, err := content.Load(data)
		if err != nil {
			return fmt.Errorf("load story content: %w", err)
		}

		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("server: close store err=%v", err)
			}
		}()

		hub := httpapi.NewHub()
		defer hub.Close()

		g := gate.New(story, store, gate.WithPublisher(hub.Broadcast))
		go g.RunTimerSweep(ctx, cfg.SweepInterval)

		router := httpapi.NewRouter(httpapi.NewServer(story, store, g, hub))
		addr := cfg.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		httpServer := &http.Server{Addr: addr, Handler: router}

		log.Printf("server: listening addr=%s story=%q db=%s", addr, story.Title, cfg.DBPath)
		errs := make(chan error, 1)
		go func() { errs <- httpServer.ListenAndServe() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errs:
			return err
		}
	})
}
