package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"plus-ev-alerts/internal/logging"
)

// Predictor kinds accepted by edge.predictor.
const (
	PredictorConstant = "constant"
	PredictorModel    = "model"
)

// Archive backends accepted by archive.backend.
const (
	ArchivePostgres = "postgres"
	ArchiveRedis    = "redis"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	OddsAPI   OddsAPIConfig   `mapstructure:"oddsapi"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Edge      EdgeConfig      `mapstructure:"edge"`
	Stake     StakeConfig     `mapstructure:"stake"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Server    ServerConfig    `mapstructure:"server"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig is used by the redis archive backend.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ArchiveConfig picks where recommended bets are remembered.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
}

// SchedulerConfig governs run cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	// StopAt is a wall clock "HH:MM" after which the loop ends for the day.
	StopAt        string `mapstructure:"stop_at"`
	StopWhenEmpty bool   `mapstructure:"stop_when_empty"`
	Timezone      string `mapstructure:"timezone"`
}

// OddsAPIConfig covers The Odds API sportsbook feed.
type OddsAPIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Regions           string        `mapstructure:"regions"`
	Markets           string        `mapstructure:"markets"`
	Sports            []string      `mapstructure:"sports"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// Bookmaker is one row of the sportsbook allow-list.
type Bookmaker struct {
	Title  string `mapstructure:"title"`
	Key    string `mapstructure:"key"`
	CanBet bool   `mapstructure:"can_bet"`
}

// ReferenceConfig locates canonical reference data.
type ReferenceConfig struct {
	// TeamsPath is an optional TOML file of canonical team names. When empty
	// the team_names table is used.
	TeamsPath   string      `mapstructure:"teams_path"`
	MatchCutoff int         `mapstructure:"match_cutoff"`
	Bookmakers  []Bookmaker `mapstructure:"bookmakers"`
}

// EdgeConfig selects the probability predictor.
type EdgeConfig struct {
	Predictor string  `mapstructure:"predictor"`
	Alpha     float64 `mapstructure:"alpha"`
	ModelPath string  `mapstructure:"model_path"`
}

// StakeConfig sets the Kelly multipliers.
type StakeConfig struct {
	Full float64 `mapstructure:"full"`
	Half float64 `mapstructure:"half"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	Timezone       string         `mapstructure:"timezone"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
	Discord        DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DiscordConfig describes the Discord webhook channel.
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// DefaultBookmakers is the sportsbook table shipped with the tool.
var DefaultBookmakers = []Bookmaker{
	{Title: "BetOnline.ag", Key: "betonlineag"},
	{Title: "BetMGM", Key: "betmgm", CanBet: true},
	{Title: "BetRivers", Key: "betrivers", CanBet: true},
	{Title: "BetUS", Key: "betus"},
	{Title: "Bovada", Key: "bovada", CanBet: true},
	{Title: "DraftKings", Key: "draftkings", CanBet: true},
	{Title: "FanDuel", Key: "fanduel", CanBet: true},
	{Title: "LowVig.ag", Key: "lowvig"},
	{Title: "MyBookie.ag", Key: "mybookieag"},
	{Title: "PointsBet (US)", Key: "pointsbetus", CanBet: true},
	{Title: "SuperBook", Key: "superbook"},
	{Title: "Unibet", Key: "unibet_us"},
	{Title: "William Hill (Caesars)", Key: "williamhill_us", CanBet: true},
	{Title: "WynnBET", Key: "wynnbet"},
	{Title: "betPARX", Key: "betparx"},
	{Title: "ESPN BET", Key: "espnbet", CanBet: true},
	{Title: "Fliff", Key: "fliff"},
	{Title: "Hard Rock Bet", Key: "hardrockbet"},
	{Title: "SI Sportsbook", Key: "sisportsbook"},
	{Title: "Tipico", Key: "tipico_us"},
	{Title: "Wind Creek (Betfred PA)", Key: "windcreek"},
}

// Load builds configuration from file, environment, and defaults. A .env file
// in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("EVWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Reference.Bookmakers) == 0 {
		cfg.Reference.Bookmakers = append([]Bookmaker(nil), DefaultBookmakers...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv accepts the bare variable names older deployments export.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("oddsapi.api_key", "EVWATCHER_ODDSAPI_API_KEY", "ODDS_API_KEY")
	_ = v.BindEnv("edge.alpha", "EVWATCHER_EDGE_ALPHA", "ALPHA")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "evwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", "evwatcher")

	v.SetDefault("archive.backend", ArchivePostgres)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x2b455601))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.stop_at", "")
	v.SetDefault("scheduler.stop_when_empty", false)
	v.SetDefault("scheduler.timezone", "Local")

	v.SetDefault("oddsapi.base_url", "https://api.the-odds-api.com/v4")
	v.SetDefault("oddsapi.regions", "us")
	v.SetDefault("oddsapi.markets", "h2h")
	v.SetDefault("oddsapi.request_timeout", "15s")
	v.SetDefault("oddsapi.requests_per_second", 2.0)
	v.SetDefault("oddsapi.burst", 1)
	v.SetDefault("oddsapi.user_agent", "evwatcher/1.0")

	v.SetDefault("reference.match_cutoff", 80)

	v.SetDefault("edge.predictor", PredictorConstant)
	v.SetDefault("edge.alpha", 0.0)

	v.SetDefault("stake.full", 1.0)
	v.SetDefault("stake.half", 0.5)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.timezone", "Local")
	v.SetDefault("alerting.request_timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.discord.enabled", false)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("export.max_rows", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.StopAt != "" {
		if _, _, err := ParseClock(c.Scheduler.StopAt); err != nil {
			return fmt.Errorf("scheduler.stop_at: %w", err)
		}
	}
	if _, err := LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if _, err := LoadLocation(c.Alerting.Timezone); err != nil {
		return fmt.Errorf("alerting.timezone: %w", err)
	}

	switch c.Edge.Predictor {
	case PredictorConstant:
		if c.Edge.Alpha < 0 || c.Edge.Alpha >= 1 {
			return fmt.Errorf("edge.alpha must be in [0, 1)")
		}
	case PredictorModel:
		if c.Edge.ModelPath == "" {
			return fmt.Errorf("edge.model_path is required for the model predictor")
		}
	default:
		return fmt.Errorf("edge.predictor %q is not one of %s, %s", c.Edge.Predictor, PredictorConstant, PredictorModel)
	}

	if c.Stake.Full < 0 || c.Stake.Half < 0 {
		return fmt.Errorf("stake multipliers cannot be negative")
	}
	if c.Reference.MatchCutoff < 0 || c.Reference.MatchCutoff > 100 {
		return fmt.Errorf("reference.match_cutoff must be between 0 and 100")
	}
	if len(c.BettableBooks()) == 0 {
		return fmt.Errorf("reference.bookmakers must allow at least one sportsbook")
	}

	switch c.Archive.Backend {
	case ArchivePostgres:
	case ArchiveRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis archive backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of %s, %s", c.Archive.Backend, ArchivePostgres, ArchiveRedis)
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url is required")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	return nil
}

// BettableBooks lists the titles of the sportsbooks marked can_bet.
func (c *Config) BettableBooks() []string {
	out := make([]string, 0, len(c.Reference.Bookmakers))
	for _, b := range c.Reference.Bookmakers {
		if b.CanBet {
			out = append(out, b.Title)
		}
	}
	return out
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}

// ParseClock parses a "HH:MM" wall clock.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// LoadLocation resolves a timezone name; empty means Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
