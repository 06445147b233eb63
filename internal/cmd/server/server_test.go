package server

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("QUESTING_PORT", "9100")
	t.Setenv("QUESTING_STORY_PATH", "env-story.json")
	t.Setenv("QUESTING_SWEEP_INTERVAL", "250ms")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "flag.db"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	if cfg.Port != 9100 {
		t.Fatalf("expected env port 9100, got %d", cfg.Port)
	}
	if cfg.StoryPath != "env-story.json" {
		t.Fatalf("expected env story path, got %q", cfg.StoryPath)
	}
	if cfg.SweepInterval != 250*time.Millisecond {
		t.Fatalf("expected env sweep interval, got %s", cfg.SweepInterval)
	}
	if cfg.DBPath != "flag.db" {
		t.Fatalf("expected flag db path to win, got %q", cfg.DBPath)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 || cfg.DBPath != "questing.db" || cfg.SweepInterval != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
