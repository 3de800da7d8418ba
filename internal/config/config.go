// Package config loads the solrun configuration: YAML file, then .env,
// then environment overrides, then validation. Components receive their
// section by value; nothing reads the environment after startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/solrun/internal/domain"
)

// Config is the root configuration document.
type Config struct {
	Loop      LoopConfig           `yaml:"loop"`
	Watchlist []string             `yaml:"watchlist"`
	Policy    domain.TradingPolicy `yaml:"policy"`
	Market    MarketConfig         `yaml:"market"`
	Sentiment SentimentConfig      `yaml:"sentiment"`
	RPC       RPCConfig            `yaml:"rpc"`
	Swap      SwapConfig           `yaml:"swap"`
	Wallet    WalletConfig         `yaml:"wallet"`
	Cache     CacheConfig          `yaml:"cache"`
	DB        DBConfig             `yaml:"db"`
	API       APIConfig            `yaml:"api"`
	Advisor   AdvisorConfig        `yaml:"advisor"`
	Log       LogConfig            `yaml:"log"`
}

// LoopConfig controls the trading loop cadence.
type LoopConfig struct {
	IntervalSecs int `yaml:"interval_secs"` // Seconds between cycles
	BackoffSecs  int `yaml:"backoff_secs"`  // Shorter wait after a failed cycle
}

// MarketConfig selects and tunes the price venue.
type MarketConfig struct {
	Venue         string  `yaml:"venue"`          // "coingecko" or "binance"
	BaseURL       string  `yaml:"base_url"`       // CoinGecko API root
	TimeoutSecs   int     `yaml:"timeout_secs"`   // Per-request timeout
	RPS           float64 `yaml:"rps"`            // Requests per second budget
	Burst         int     `yaml:"burst"`          // Burst capacity
	CacheTTLSecs  int     `yaml:"cache_ttl_secs"` // Snapshot cache TTL
	QuoteCurrency string  `yaml:"quote_currency"` // Pricing currency (usd)
	BinanceSuffix string  `yaml:"binance_suffix"` // Pair suffix on Binance
}

// SentimentConfig tunes the sentiment probe.
type SentimentConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`     // Fear & Greed endpoint
	TimeoutSecs int    `yaml:"timeout_secs"` // Per-source timeout
}

// RPCConfig describes the ordered Solana RPC endpoint pool.
type RPCConfig struct {
	Endpoints   []string      `yaml:"endpoints"` // Tried in order until success
	TimeoutSecs int           `yaml:"timeout_secs"`
	MaxRetries  int           `yaml:"max_retries"` // Per endpoint, before moving on
	RPS         float64       `yaml:"rps"`
	Burst       int           `yaml:"burst"`
	BackoffMS   BackoffConfig `yaml:"backoff_ms"`
	Circuit     CircuitConfig `yaml:"circuit"`
}

// BackoffConfig is exponential backoff in milliseconds.
type BackoffConfig struct {
	Base   int  `yaml:"base"`
	Max    int  `yaml:"max"`
	Jitter bool `yaml:"jitter"`
}

// CircuitConfig tunes the per-endpoint circuit breaker.
type CircuitConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold"` // Consecutive failures to open
	OpenSecs         int    `yaml:"open_secs"`         // Open duration before half-open probe
}

// SwapConfig tunes the Jupiter swap pipeline.
type SwapConfig struct {
	JupiterBaseURL     string `yaml:"jupiter_base_url"`
	SlippageBps        int    `yaml:"slippage_bps"`
	QuoteTimeoutSecs   int    `yaml:"quote_timeout_secs"`
	SubmitTimeoutSecs  int    `yaml:"submit_timeout_secs"`
	ConfirmTimeoutSecs int    `yaml:"confirm_timeout_secs"`
	ConfirmPollMS      int    `yaml:"confirm_poll_ms"`
	MaxQuoteAgeSecs    int    `yaml:"max_quote_age_secs"` // Older quotes are re-fetched
	QuoteToken         string `yaml:"quote_token"`        // Settlement side of every pair
}

// WalletConfig controls wallet startup behavior. The private key itself
// only ever arrives via SOLRUN_PRIVATE_KEY, never from YAML.
type WalletConfig struct {
	AutoConnect bool `yaml:"auto_connect"`
}

// CacheConfig selects the cache backend: Redis when an address is set,
// in-process memory otherwise.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr"`
}

// DBConfig mirrors the optional Postgres trade journal.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN renders the lib/pq connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.Username, d.Password, d.SSLMode)
}

// APIConfig controls the local HTTP control surface.
type APIConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Host             string `yaml:"host"` // Local-only by default
	Port             int    `yaml:"port"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
	IdleTimeoutSecs  int    `yaml:"idle_timeout_secs"`
}

// AdvisorConfig tunes the optional AI recommendation capability.
type AdvisorConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"` // Empty uses the OpenAI default
	TimeoutSecs int    `yaml:"timeout_secs"`
	APIKey      string `yaml:"-"` // Env only: OPENAI_API_KEY
}

// LogConfig selects log verbosity.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the stock configuration: trading disabled, mainnet
// endpoints, CoinGecko venue, local-only API.
func Default() Config {
	return Config{
		Loop:      LoopConfig{IntervalSecs: 300, BackoffSecs: 60},
		Watchlist: []string{"SOL", "JUP", "JTO", "BONK"},
		Policy:    domain.DefaultTradingPolicy(),
		Market: MarketConfig{
			Venue:         "coingecko",
			BaseURL:       "https://api.coingecko.com/api/v3",
			TimeoutSecs:   10,
			RPS:           2,
			Burst:         4,
			CacheTTLSecs:  60,
			QuoteCurrency: "usd",
			BinanceSuffix: "USDT",
		},
		Sentiment: SentimentConfig{
			Enabled:     true,
			BaseURL:     "https://api.alternative.me/fng/",
			TimeoutSecs: 10,
		},
		RPC: RPCConfig{
			Endpoints: []string{
				"https://api.mainnet-beta.solana.com",
				"https://solana-api.projectserum.com",
				"https://rpc.ankr.com/solana",
			},
			TimeoutSecs: 10,
			MaxRetries:  2,
			RPS:         10,
			Burst:       20,
			BackoffMS:   BackoffConfig{Base: 250, Max: 4000, Jitter: true},
			Circuit:     CircuitConfig{FailureThreshold: 5, OpenSecs: 30},
		},
		Swap: SwapConfig{
			JupiterBaseURL:     "https://quote-api.jup.ag/v6",
			SlippageBps:        100,
			QuoteTimeoutSecs:   10,
			SubmitTimeoutSecs:  30,
			ConfirmTimeoutSecs: 45,
			ConfirmPollMS:      1500,
			MaxQuoteAgeSecs:    30,
			QuoteToken:         "USDC",
		},
		Wallet: WalletConfig{AutoConnect: true},
		Cache:  CacheConfig{},
		DB: DBConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			Database: "solrun",
			Username: "solrun",
			Password: "",
			SSLMode:  "disable",
		},
		API: APIConfig{
			Enabled:          true,
			Host:             "127.0.0.1",
			Port:             8787,
			ReadTimeoutSecs:  10,
			WriteTimeoutSecs: 10,
			IdleTimeoutSecs:  60,
		},
		Advisor: AdvisorConfig{
			Enabled:     true,
			Model:       "gpt-4o-mini",
			TimeoutSecs: 30,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (missing file falls back to defaults),
// loads .env, applies environment overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults + env are a complete configuration.
		default:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TRADING_ENABLED"); v != "" {
		c.Policy.TradingEnabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("MAX_TRADE_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Policy.MaxTradeAmount = f
		}
	}
	if v := os.Getenv("MAX_DAILY_TRADES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Policy.MaxDailyTrades = n
		}
	}
	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		// Operator-supplied endpoint becomes the primary; stock list stays
		// as fallback.
		c.RPC.Endpoints = append([]string{v}, c.RPC.Endpoints...)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Advisor.APIKey = v
	}
	if v := os.Getenv("SOLRUN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate ensures the configuration is usable before anything starts.
func (c *Config) Validate() error {
	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist cannot be empty")
	}
	if c.Loop.IntervalSecs <= 0 {
		return fmt.Errorf("loop interval_secs must be positive, got %d", c.Loop.IntervalSecs)
	}
	if c.Loop.BackoffSecs <= 0 {
		return fmt.Errorf("loop backoff_secs must be positive, got %d", c.Loop.BackoffSecs)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Market.Venue != "coingecko" && c.Market.Venue != "binance" {
		return fmt.Errorf("market venue must be coingecko or binance, got %q", c.Market.Venue)
	}
	if c.Market.TimeoutSecs <= 0 {
		return fmt.Errorf("market timeout_secs must be positive, got %d", c.Market.TimeoutSecs)
	}
	if len(c.RPC.Endpoints) == 0 {
		return fmt.Errorf("rpc endpoints cannot be empty")
	}
	if c.RPC.BackoffMS.Base <= 0 || c.RPC.BackoffMS.Max < c.RPC.BackoffMS.Base {
		return fmt.Errorf("rpc backoff_ms: max (%d) must be >= base (%d) and base positive",
			c.RPC.BackoffMS.Max, c.RPC.BackoffMS.Base)
	}
	if c.Swap.SlippageBps < 0 {
		return fmt.Errorf("swap slippage_bps cannot be negative, got %d", c.Swap.SlippageBps)
	}
	if c.Swap.JupiterBaseURL == "" {
		return fmt.Errorf("swap jupiter_base_url cannot be empty")
	}
	if c.Swap.QuoteToken == "" {
		return fmt.Errorf("swap quote_token cannot be empty")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api port must be in (0,65535], got %d", c.API.Port)
	}
	if c.DB.Enabled && c.DB.Host == "" {
		return fmt.Errorf("db host cannot be empty when db is enabled")
	}
	return nil
}

// Interval returns the loop cadence as a duration.
func (c LoopConfig) Interval() time.Duration { return time.Duration(c.IntervalSecs) * time.Second }

// Backoff returns the post-error wait as a duration.
func (c LoopConfig) Backoff() time.Duration { return time.Duration(c.BackoffSecs) * time.Second }

// Timeout returns the market request timeout as a duration.
func (c MarketConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// CacheTTL returns the snapshot cache TTL as a duration.
func (c MarketConfig) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSecs) * time.Second }

// Timeout returns the per-source sentiment timeout as a duration.
func (c SentimentConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// Timeout returns the per-call RPC timeout as a duration.
func (c RPCConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// BaseBackoff returns the initial retry delay.
func (b BackoffConfig) BaseBackoff() time.Duration { return time.Duration(b.Base) * time.Millisecond }

// MaxBackoff returns the retry delay ceiling.
func (b BackoffConfig) MaxBackoff() time.Duration { return time.Duration(b.Max) * time.Millisecond }

// OpenFor returns how long an opened circuit stays open.
func (c CircuitConfig) OpenFor() time.Duration { return time.Duration(c.OpenSecs) * time.Second }

// QuoteTimeout bounds the quote leg of the pipeline.
func (c SwapConfig) QuoteTimeout() time.Duration {
	return time.Duration(c.QuoteTimeoutSecs) * time.Second
}

// SubmitTimeout bounds the submission leg of the pipeline.
func (c SwapConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSecs) * time.Second
}

// ConfirmTimeout bounds confirmation polling.
func (c SwapConfig) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSecs) * time.Second
}

// ConfirmPoll is the confirmation polling interval.
func (c SwapConfig) ConfirmPoll() time.Duration {
	return time.Duration(c.ConfirmPollMS) * time.Millisecond
}

// MaxQuoteAge is the staleness bound for advisory quotes.
func (c SwapConfig) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeSecs) * time.Second
}

// ReadTimeout returns the HTTP read timeout.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the HTTP write timeout.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSecs) * time.Second
}

// IdleTimeout returns the HTTP idle timeout.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// Timeout bounds one advisor completion call.
func (c AdvisorConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }
