package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
//
// Safety-relevant risk limits (max bet, daily budget, exposure) are not part of
// Config: they live in the store's risk_config row so every decision reads them fresh.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Polymarket API
	PolymarketGammaURL   string
	PolymarketCLOBURL    string
	PolymarketDataURL    string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolymarketAddress    string
	PolymarketProxy      string
	SignatureType        int
	HTTPTimeout          time.Duration

	// Polygon RPC endpoint for on-chain balance reads. Empty disables them.
	PolygonRPCURL string

	// Execution
	ExecutionMode        string // "paper" or "live"
	PaperStartingBalance float64

	// Storage
	StorageMode  string // "postgres" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Cache
	MarketCacheTTL  time.Duration
	HistoryCacheTTL time.Duration

	// AI trading loop
	TradingInterval      time.Duration
	TradingAutoStart     bool
	InterMarketDelay     time.Duration
	PriceHistoryInterval string
	PriceHistoryFidelity int

	// Advisory providers
	AnthropicAPIKey     string
	AnthropicModel      string
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIBaseURL       string
	OllamaURL           string
	OllamaModel         string
	AdvisorTimeout      time.Duration
	AdvisorParseRetries int

	// Arbitrage
	ArbScanInterval       time.Duration
	ArbAutoStart          bool
	ArbMinSpreadPct       float64
	ArbMultiOutcome       bool
	ArbMinLiquidity       float64
	ArbMarketLimit        int
	ArbEventLimit         int
	ArbStaleAfter         time.Duration
	ArbResolutionBuffer   time.Duration
	ArbResolutionRetry    time.Duration
	ArbExecutionPolicy    string // "fallback" or "abort"
	ArbAutoExecute        bool
	ArbAutoMinSpreadPct   float64
	ArbAutoInvestment     float64
	ArbAutoMaxPerScan     int
	ArbDefaultInvestment  float64
	TradeResolutionBuffer time.Duration

	// Copy trading
	CopyCheckInterval time.Duration
	CopyAutoStart     bool
	CopyTopTraders    int
	CopyActivityLimit int
	CopyTopPositions  int
	CopySnipeSize     float64
	CopyProfitTarget  float64
	CopyOrderDelay    time.Duration
	CopyPaperDrift    string // "random-walk" or "none"

	// Circuit breaker
	CircuitBreakerEnabled       bool
	CircuitBreakerCheckInterval time.Duration
	CircuitBreakerMultiplier    float64
	CircuitBreakerMinAbsolute   float64
	CircuitBreakerHysteresis    float64
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Polymarket API defaults
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketCLOBURL:    getEnvOrDefault("POLYMARKET_CLOB_API_URL", "https://clob.polymarket.com"),
		PolymarketDataURL:    getEnvOrDefault("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketAddress:    os.Getenv("POLYMARKET_ADDRESS"),
		PolymarketProxy:      os.Getenv("POLYMARKET_PROXY_ADDRESS"),
		SignatureType:        getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),
		HTTPTimeout:          getDurationOrDefault("HTTP_TIMEOUT", 15*time.Second),
		PolygonRPCURL:        os.Getenv("POLYGON_RPC_URL"),

		// Execution defaults
		ExecutionMode:        getEnvOrDefault("EXECUTION_MODE", "paper"),
		PaperStartingBalance: getFloat64OrDefault("PAPER_STARTING_BALANCE", 1000.0),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "memory"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "polymarket_autotrader"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		// Cache defaults
		MarketCacheTTL:  getDurationOrDefault("MARKET_CACHE_TTL", 30*time.Second),
		HistoryCacheTTL: getDurationOrDefault("HISTORY_CACHE_TTL", 10*time.Minute),

		// AI trading defaults
		TradingInterval:      getDurationOrDefault("TRADING_INTERVAL", 5*time.Minute),
		TradingAutoStart:     getBoolOrDefault("TRADING_AUTO_START", false),
		InterMarketDelay:     getDurationOrDefault("TRADING_INTER_MARKET_DELAY", 2*time.Second),
		PriceHistoryInterval: getEnvOrDefault("TRADING_PRICE_HISTORY_INTERVAL", "1d"),
		PriceHistoryFidelity: getIntOrDefault("TRADING_PRICE_HISTORY_FIDELITY", 60),

		// Advisory defaults
		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:      getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		OllamaURL:           os.Getenv("OLLAMA_URL"),
		OllamaModel:         getEnvOrDefault("OLLAMA_MODEL", "llama3.1"),
		AdvisorTimeout:      getDurationOrDefault("ADVISOR_TIMEOUT", 60*time.Second),
		AdvisorParseRetries: getIntOrDefault("ADVISOR_PARSE_RETRIES", 1),

		// Arbitrage defaults
		ArbScanInterval:       getDurationOrDefault("ARB_SCAN_INTERVAL", 2*time.Minute),
		ArbAutoStart:          getBoolOrDefault("ARB_AUTO_START", false),
		ArbMinSpreadPct:       getFloat64OrDefault("ARB_MIN_SPREAD_PCT", 0.005),
		ArbMultiOutcome:       getBoolOrDefault("ARB_MULTI_OUTCOME", true),
		ArbMinLiquidity:       getFloat64OrDefault("ARB_MIN_LIQUIDITY", 100.0),
		ArbMarketLimit:        getIntOrDefault("ARB_MARKET_LIMIT", 500),
		ArbEventLimit:         getIntOrDefault("ARB_EVENT_LIMIT", 200),
		ArbStaleAfter:         getDurationOrDefault("ARB_STALE_AFTER", 5*time.Minute),
		ArbResolutionBuffer:   getDurationOrDefault("ARB_RESOLUTION_BUFFER", 5*time.Minute),
		ArbResolutionRetry:    getDurationOrDefault("ARB_RESOLUTION_RETRY", 10*time.Minute),
		ArbExecutionPolicy:    getEnvOrDefault("ARB_EXECUTION_POLICY", "fallback"),
		ArbAutoExecute:        getBoolOrDefault("ARB_AUTO_EXECUTE", false),
		ArbAutoMinSpreadPct:   getFloat64OrDefault("ARB_AUTO_MIN_SPREAD_PCT", 0.02),
		ArbAutoInvestment:     getFloat64OrDefault("ARB_AUTO_INVESTMENT", 10.0),
		ArbAutoMaxPerScan:     getIntOrDefault("ARB_AUTO_MAX_PER_SCAN", 1),
		ArbDefaultInvestment:  getFloat64OrDefault("ARB_DEFAULT_INVESTMENT", 10.0),
		TradeResolutionBuffer: getDurationOrDefault("TRADE_RESOLUTION_BUFFER", 5*time.Minute),

		// Copy trading defaults
		CopyCheckInterval: getDurationOrDefault("COPY_CHECK_INTERVAL", time.Minute),
		CopyAutoStart:     getBoolOrDefault("COPY_AUTO_START", false),
		CopyTopTraders:    getIntOrDefault("COPY_TOP_TRADERS", 10),
		CopyActivityLimit: getIntOrDefault("COPY_ACTIVITY_LIMIT", 50),
		CopyTopPositions:  getIntOrDefault("COPY_TOP_POSITIONS", 5),
		CopySnipeSize:     getFloat64OrDefault("COPY_SNIPE_SIZE", 5.0),
		CopyProfitTarget:  getFloat64OrDefault("COPY_PROFIT_TARGET", 0.05),
		CopyOrderDelay:    getDurationOrDefault("COPY_ORDER_DELAY", time.Second),
		CopyPaperDrift:    getEnvOrDefault("COPY_PAPER_DRIFT", "random-walk"),

		// Circuit breaker defaults
		CircuitBreakerEnabled:       getBoolOrDefault("CIRCUIT_BREAKER_ENABLED", true),
		CircuitBreakerCheckInterval: getDurationOrDefault("CIRCUIT_BREAKER_CHECK_INTERVAL", 5*time.Minute),
		CircuitBreakerMultiplier:    getFloat64OrDefault("CIRCUIT_BREAKER_TRADE_MULTIPLIER", 3.0),
		CircuitBreakerMinAbsolute:   getFloat64OrDefault("CIRCUIT_BREAKER_MIN_ABSOLUTE", 5.0),
		CircuitBreakerHysteresis:    getFloat64OrDefault("CIRCUIT_BREAKER_HYSTERESIS_RATIO", 1.5),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.PolymarketGammaURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty")
	}

	if c.PolymarketCLOBURL == "" {
		return fmt.Errorf("POLYMARKET_CLOB_API_URL cannot be empty")
	}

	if c.ExecutionMode != "paper" && c.ExecutionMode != "live" {
		return fmt.Errorf("EXECUTION_MODE must be 'paper' or 'live', got %q", c.ExecutionMode)
	}

	if c.ExecutionMode == "live" {
		if c.PolymarketPrivateKey == "" || c.PolymarketAPIKey == "" || c.PolymarketSecret == "" || c.PolymarketPassphrase == "" {
			return fmt.Errorf("live execution requires POLYMARKET_PRIVATE_KEY, POLYMARKET_API_KEY, POLYMARKET_SECRET and POLYMARKET_PASSPHRASE")
		}
	}

	if c.StorageMode != "memory" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'memory' or 'postgres', got %q", c.StorageMode)
	}

	if c.ArbMinSpreadPct < 0 || c.ArbMinSpreadPct >= 1.0 {
		return fmt.Errorf("ARB_MIN_SPREAD_PCT must be in [0, 1.0), got %f", c.ArbMinSpreadPct)
	}

	if c.ArbExecutionPolicy != "fallback" && c.ArbExecutionPolicy != "abort" {
		return fmt.Errorf("ARB_EXECUTION_POLICY must be 'fallback' or 'abort', got %q", c.ArbExecutionPolicy)
	}

	if c.CopyPaperDrift != "random-walk" && c.CopyPaperDrift != "none" {
		return fmt.Errorf("COPY_PAPER_DRIFT must be 'random-walk' or 'none', got %q", c.CopyPaperDrift)
	}

	if c.CopyProfitTarget <= 0 {
		return fmt.Errorf("COPY_PROFIT_TARGET must be positive, got %f", c.CopyProfitTarget)
	}

	if c.TradingInterval <= 0 || c.ArbScanInterval <= 0 || c.CopyCheckInterval <= 0 {
		return fmt.Errorf("loop intervals must be positive")
	}

	if c.ArbResolutionRetry <= 0 {
		return fmt.Errorf("ARB_RESOLUTION_RETRY must be positive, got %s", c.ArbResolutionRetry)
	}

	return nil
}

// PostgresDSN returns the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPass, c.PostgresDB, c.PostgresSSL)
}

// IsPaper reports whether orders are simulated.
func (c *Config) IsPaper() bool {
	return c.ExecutionMode == "paper"
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
