package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{Interval: 5 * time.Minute},
		Reference: ReferenceConfig{MatchCutoff: 80, Bookmakers: DefaultBookmakers},
		Edge:      EdgeConfig{Predictor: PredictorConstant, Alpha: 0.02},
		Stake:     StakeConfig{Full: 1, Half: 0.5},
		Archive:   ArchiveConfig{Backend: ArchivePostgres},
		Export:    ExportConfig{MaxRows: 100},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }, wantErr: "scheduler.interval"},
		{name: "bad stop_at", mutate: func(c *Config) { c.Scheduler.StopAt = "9pm" }, wantErr: "scheduler.stop_at"},
		{name: "alpha too large", mutate: func(c *Config) { c.Edge.Alpha = 1 }, wantErr: "edge.alpha"},
		{name: "negative alpha", mutate: func(c *Config) { c.Edge.Alpha = -0.1 }, wantErr: "edge.alpha"},
		{name: "model without path", mutate: func(c *Config) { c.Edge.Predictor = PredictorModel }, wantErr: "edge.model_path"},
		{name: "unknown predictor", mutate: func(c *Config) { c.Edge.Predictor = "oracle" }, wantErr: "edge.predictor"},
		{name: "no bettable books", mutate: func(c *Config) {
			c.Reference.Bookmakers = []Bookmaker{{Title: "BetUS", Key: "betus"}}
		}, wantErr: "reference.bookmakers"},
		{name: "redis without addr", mutate: func(c *Config) { c.Archive.Backend = ArchiveRedis }, wantErr: "redis.addr"},
		{name: "unknown backend", mutate: func(c *Config) { c.Archive.Backend = "s3" }, wantErr: "archive.backend"},
		{name: "telegram without token", mutate: func(c *Config) {
			c.Alerting.Telegram = TelegramConfig{Enabled: true, ChatID: "1"}
		}, wantErr: "bot_token"},
		{name: "discord without webhook", mutate: func(c *Config) { c.Alerting.Discord.Enabled = true }, wantErr: "webhook_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBettableBooksDefault(t *testing.T) {
	cfg := validConfig()
	books := cfg.BettableBooks()
	want := map[string]bool{"BetMGM": true, "DraftKings": true, "FanDuel": true, "ESPN BET": true}
	for name := range want {
		found := false
		for _, b := range books {
			if b == name {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s should be bettable, got %v", name, books)
		}
	}
	for _, b := range books {
		if b == "BetOnline.ag" {
			t.Fatalf("BetOnline.ag must not be bettable")
		}
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
scheduler:
  interval: 2m
  stop_at: "21:30"
edge:
  predictor: constant
  alpha: 0.01
reference:
  bookmakers:
    - title: FanDuel
      key: fanduel
      can_bet: true
oddsapi:
  sports: basketball_nba,icehockey_nhl
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EVWATCHER_EDGE_ALPHA", "0.03")
	t.Setenv("ODDS_API_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Interval != 2*time.Minute {
		t.Fatalf("interval = %v", cfg.Scheduler.Interval)
	}
	if cfg.Edge.Alpha != 0.03 {
		t.Fatalf("env should override alpha, got %v", cfg.Edge.Alpha)
	}
	if cfg.OddsAPI.APIKey != "secret" {
		t.Fatalf("ODDS_API_KEY not bound, got %q", cfg.OddsAPI.APIKey)
	}
	if len(cfg.OddsAPI.Sports) != 2 || cfg.OddsAPI.Sports[1] != "icehockey_nhl" {
		t.Fatalf("sports = %v", cfg.OddsAPI.Sports)
	}
	if books := cfg.BettableBooks(); len(books) != 1 || books[0] != "FanDuel" {
		t.Fatalf("bookmakers = %v", books)
	}
	if cfg.OddsAPI.BaseURL != "https://api.the-odds-api.com/v4" {
		t.Fatalf("default base url missing, got %q", cfg.OddsAPI.BaseURL)
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("21:30")
	if err != nil || h != 21 || m != 30 {
		t.Fatalf("ParseClock = %d:%d %v", h, m, err)
	}
	if _, _, err := ParseClock("25:00"); err == nil {
		t.Fatal("invalid hour should fail")
	}
}
