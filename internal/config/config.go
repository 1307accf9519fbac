package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds node configuration.
type Config struct {
	// DatabaseURL selects the postgres store. Empty keeps state in memory.
	DatabaseURL string `yaml:"database_url"`
	ServerAddr  string `yaml:"server_addr"`
	APIToken    string `yaml:"api_token"`
	LogLevel    string `yaml:"log_level"`

	Redis RedisConfig `yaml:"redis"`
	RPC   RPCConfig   `yaml:"rpc"`
	Inbox InboxConfig `yaml:"inbox"`
	Vote  VoteConfig  `yaml:"vote"`

	ChainNetwork string   `yaml:"chain_network"`
	WalletKeys   []string `yaml:"wallet_keys"`
	// WalletKeysFile holds additional WIF keys, one per line.
	WalletKeysFile string `yaml:"wallet_keys_file"`
}

type RedisConfig struct {
	// Addr is a redis:// url or host:port. Empty disables the stream sink.
	Addr   string `yaml:"addr"`
	Stream string `yaml:"stream"`
	MaxLen int64  `yaml:"max_len"`
}

type RPCConfig struct {
	URL          string `yaml:"url"`
	User         string `yaml:"user"`
	Pass         string `yaml:"pass"`
	EscrowMethod string `yaml:"escrow_method"`
}

type InboxConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetentionDays int           `yaml:"retention_days"`
}

type VoteConfig struct {
	ItemRemovalPercent   float64 `yaml:"item_removal_percent"`
	MarketRemovalPercent float64 `yaml:"market_removal_percent"`
	RemovalExpression    string  `yaml:"removal_expression"`
}

// URL returns Addr as a url accepted by the redis client.
func (r RedisConfig) URL() string {
	if r.Addr == "" || strings.Contains(r.Addr, "://") {
		return r.Addr
	}
	return "redis://" + r.Addr
}

func defaults() *Config {
	return &Config{
		ServerAddr:   "0.0.0.0:8080",
		LogLevel:     "info",
		ChainNetwork: "mainnet",
		Redis: RedisConfig{
			Stream: "marketd.notifications",
			MaxLen: 10000,
		},
		RPC: RPCConfig{URL: "http://127.0.0.1:51735"},
		Inbox: InboxConfig{
			Workers:       4,
			BatchSize:     50,
			PollInterval:  5 * time.Second,
			MaxRetries:    5,
			RetentionDays: 7,
		},
		Vote: VoteConfig{
			ItemRemovalPercent:   0.1,
			MarketRemovalPercent: 0.1,
		},
	}
}

// Load reads configuration from CONFIG_FILE when set, then from environment.
// Environment values win over the file.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	if cfg.DatabaseURL == "" && os.Getenv("POSTGRES_HOST") != "" {
		user := getenv("POSTGRES_USER", "marketd")
		pass := getenv("POSTGRES_PASSWORD", "marketd")
		db := getenv("POSTGRES_DB", "marketd")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			user, pass, os.Getenv("POSTGRES_HOST"), port, db, sslmode)
	}
	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.APIToken = getenv("API_TOKEN", cfg.APIToken)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)

	cfg.Redis.Addr = getenv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Stream = getenv("REDIS_STREAM", cfg.Redis.Stream)
	cfg.Redis.MaxLen = int64(parseInt(os.Getenv("REDIS_STREAM_MAXLEN"), int(cfg.Redis.MaxLen)))

	cfg.RPC.URL = getenv("RPC_URL", cfg.RPC.URL)
	cfg.RPC.User = getenv("RPC_USER", cfg.RPC.User)
	cfg.RPC.Pass = getenv("RPC_PASS", cfg.RPC.Pass)
	cfg.RPC.EscrowMethod = getenv("RPC_ESCROW_METHOD", cfg.RPC.EscrowMethod)

	cfg.Inbox.Workers = parseInt(os.Getenv("INBOX_WORKERS"), cfg.Inbox.Workers)
	cfg.Inbox.BatchSize = parseInt(os.Getenv("INBOX_BATCH_SIZE"), cfg.Inbox.BatchSize)
	cfg.Inbox.PollInterval = parseDuration(os.Getenv("INBOX_POLL_INTERVAL"), cfg.Inbox.PollInterval)
	cfg.Inbox.MaxRetries = parseInt(os.Getenv("INBOX_MAX_RETRIES"), cfg.Inbox.MaxRetries)
	cfg.Inbox.RetentionDays = parseInt(os.Getenv("MESSAGE_RETENTION_DAYS"), cfg.Inbox.RetentionDays)

	cfg.Vote.ItemRemovalPercent = parseFloat(os.Getenv("ITEM_VOTE_REMOVAL_PERCENT"), cfg.Vote.ItemRemovalPercent)
	cfg.Vote.MarketRemovalPercent = parseFloat(os.Getenv("MARKET_VOTE_REMOVAL_PERCENT"), cfg.Vote.MarketRemovalPercent)
	cfg.Vote.RemovalExpression = getenv("REMOVAL_EXPRESSION", cfg.Vote.RemovalExpression)

	cfg.ChainNetwork = getenv("CHAIN_NETWORK", cfg.ChainNetwork)
	if keys := os.Getenv("WALLET_WIFS"); keys != "" {
		cfg.WalletKeys = splitCSV(keys)
	}
	cfg.WalletKeysFile = getenv("WALLET_KEYS_FILE", cfg.WalletKeysFile)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Inbox.Workers <= 0 {
		return fmt.Errorf("inbox workers must be positive")
	}
	if c.Inbox.BatchSize <= 0 {
		return fmt.Errorf("inbox batch size must be positive")
	}
	if c.Inbox.PollInterval <= 0 {
		return fmt.Errorf("inbox poll interval must be positive")
	}
	if c.Inbox.RetentionDays <= 0 {
		return fmt.Errorf("message retention must be at least one day")
	}
	if c.Vote.ItemRemovalPercent < 0 || c.Vote.MarketRemovalPercent < 0 {
		return fmt.Errorf("removal percentages must not be negative")
	}
	return nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(val string, def float64) float64 {
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
