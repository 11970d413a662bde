package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"orderScope/internal/chain"
)

// ChainEntry is one configured gateway deployment.
type ChainEntry struct {
	ID       uint64 `mapstructure:"id" validate:"required"`
	Name     string `mapstructure:"name"`
	RPC      string `mapstructure:"rpc" validate:"required,url"`
	Contract string `mapstructure:"contract" validate:"required"`
	Enabled  *bool  `mapstructure:"enabled"`
	Slow     bool   `mapstructure:"slow"`
}

// IsEnabled treats a missing enabled flag as true.
func (c ChainEntry) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SyncConfig controls the sync job and scheduler.
type SyncConfig struct {
	OrdersInterval  time.Duration
	MetricsInterval time.Duration
	VolumeInterval  time.Duration
	InitialLookback uint64 `validate:"gt=0"`
	BatchSize       uint64 `validate:"gt=0"`
	BatchDelay      time.Duration
	SlowBatchDelay  time.Duration
}

// RPCConfig controls chain call pacing.
type RPCConfig struct {
	Cooldown       time.Duration
	SlowExtraDelay time.Duration
	MaxRetries     int    `validate:"gte=0,lte=20"`
	RetryBackoff   time.Duration
	EventBatchSize uint64 `validate:"gt=0"`
	Timeout        time.Duration
}

// PriceConfig controls the price feed and its cache.
type PriceConfig struct {
	APIURL        string `validate:"required,url"`
	APIKey        string
	LocalCurrency string `validate:"required"`
	CacheTTL      time.Duration
	MinInterval   time.Duration
	SymbolsFile   string
}

// APIConfig controls the analytics server.
type APIConfig struct {
	MaxPageSize int `validate:"gt=0,lte=1000"`
	CacheTTL    time.Duration
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel    string `validate:"oneof=debug info warn error"`
	PGDSN       string
	RedisAddr   string
	RedisDB     int `validate:"gte=0"`
	HTTPAddr    string
	AdminSecret string
	Sync        SyncConfig
	RPC         RPCConfig
	Price       PriceConfig
	API         APIConfig
	Chains      []ChainEntry `validate:"dive"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORDERSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:    v.GetString("log-level"),
		PGDSN:       v.GetString("pg-dsn"),
		RedisAddr:   v.GetString("redis-addr"),
		RedisDB:     v.GetInt("redis-db"),
		HTTPAddr:    v.GetString("http-addr"),
		AdminSecret: v.GetString("admin-secret"),
		Sync: SyncConfig{
			OrdersInterval:  v.GetDuration("sync.orders-interval"),
			MetricsInterval: v.GetDuration("sync.metrics-interval"),
			VolumeInterval:  v.GetDuration("sync.volume-interval"),
			InitialLookback: v.GetUint64("sync.initial-lookback"),
			BatchSize:       v.GetUint64("sync.batch-size"),
			BatchDelay:      v.GetDuration("sync.batch-delay"),
			SlowBatchDelay:  v.GetDuration("sync.slow-batch-delay"),
		},
		RPC: RPCConfig{
			Cooldown:       v.GetDuration("rpc.cooldown"),
			SlowExtraDelay: v.GetDuration("rpc.slow-extra-delay"),
			MaxRetries:     v.GetInt("rpc.max-retries"),
			RetryBackoff:   v.GetDuration("rpc.retry-backoff"),
			EventBatchSize: v.GetUint64("rpc.event-batch-size"),
			Timeout:        v.GetDuration("rpc.timeout"),
		},
		Price: PriceConfig{
			APIURL:        v.GetString("price.api-url"),
			APIKey:        v.GetString("price.api-key"),
			LocalCurrency: strings.ToLower(v.GetString("price.local-currency")),
			CacheTTL:      v.GetDuration("price.cache-ttl"),
			MinInterval:   v.GetDuration("price.min-interval"),
			SymbolsFile:   v.GetString("price.symbols-file"),
		},
		API: APIConfig{
			MaxPageSize: v.GetInt("api.max-page-size"),
			CacheTTL:    v.GetDuration("api.cache-ttl"),
		},
	}
	if err := v.UnmarshalKey("chains", &cfg.Chains); err != nil {
		return Config{}, fmt.Errorf("decode chains: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("http-addr", ":8080")
	v.SetDefault("redis-db", 0)

	v.SetDefault("sync.orders-interval", 5*time.Minute)
	v.SetDefault("sync.metrics-interval", 10*time.Minute)
	v.SetDefault("sync.volume-interval", 15*time.Minute)
	v.SetDefault("sync.initial-lookback", uint64(100_000))
	v.SetDefault("sync.batch-size", uint64(5000))
	v.SetDefault("sync.batch-delay", time.Second)
	v.SetDefault("sync.slow-batch-delay", 5*time.Second)

	v.SetDefault("rpc.cooldown", time.Second)
	v.SetDefault("rpc.slow-extra-delay", 2*time.Second)
	v.SetDefault("rpc.max-retries", 3)
	v.SetDefault("rpc.retry-backoff", 500*time.Millisecond)
	v.SetDefault("rpc.event-batch-size", uint64(2000))
	v.SetDefault("rpc.timeout", 30*time.Second)

	v.SetDefault("price.api-url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price.local-currency", "ngn")
	v.SetDefault("price.cache-ttl", 5*time.Minute)
	v.SetDefault("price.min-interval", time.Minute)

	v.SetDefault("api.max-page-size", 100)
	v.SetDefault("api.cache-ttl", 30*time.Second)
}

// Validate checks struct constraints, contract addresses and chain id uniqueness.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[uint64]struct{}, len(c.Chains))
	for _, entry := range c.Chains {
		if _, ok := seen[entry.ID]; ok {
			return fmt.Errorf("invalid config: duplicate chain id %d", entry.ID)
		}
		seen[entry.ID] = struct{}{}
		if !common.IsHexAddress(entry.Contract) {
			return fmt.Errorf("invalid config: chain %d contract %q is not an address", entry.ID, entry.Contract)
		}
	}
	return nil
}

// ChainConfigs returns the enabled chains in configuration order.
func (c Config) ChainConfigs() []chain.ChainConfig {
	out := make([]chain.ChainConfig, 0, len(c.Chains))
	for _, entry := range c.Chains {
		if !entry.IsEnabled() {
			continue
		}
		name := entry.Name
		if name == "" {
			name = fmt.Sprintf("chain-%d", entry.ID)
		}
		out = append(out, chain.ChainConfig{
			ID:       entry.ID,
			Name:     name,
			RPCURL:   entry.RPC,
			Contract: common.HexToAddress(entry.Contract),
			Slow:     entry.Slow,
		})
	}
	return out
}

// ConnectorConfig maps RPC settings onto the chain connector.
func (c Config) ConnectorConfig() chain.ConnectorConfig {
	return chain.ConnectorConfig{
		Cooldown:       c.RPC.Cooldown,
		SlowExtraDelay: c.RPC.SlowExtraDelay,
		MaxRetries:     c.RPC.MaxRetries,
		RetryBackoff:   c.RPC.RetryBackoff,
		EventBatchSize: c.RPC.EventBatchSize,
		CallTimeout:    c.RPC.Timeout,
	}
}
