package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"cdpHistory/internal/chain"
	"cdpHistory/internal/model"
)

// Mainnet MCD deployment.
const (
	DefaultManager   = "0x5ef30b9986345249bc32d8928B7ee64DE9435E39"
	DefaultVat       = "0x35D1b3F3D7966A1DFe207aa4514C12a259A0492B"
	DefaultJoinDai   = "0x9759A6Ac90977b93B58547b4A71c78317f391A28"
	DefaultJoinSai   = "0xad37fd42185Ba63009177058208dd1be4b136e6b"
	DefaultMigration = "0xc73e0383F3Aff3215E6f04B0331D58CeCf0Ab849"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL string
	CdpIDs []string
	// Ilk, Gem and Urn override on-chain position lookup; only valid with a single CDP.
	Ilk string
	Gem string
	Urn string

	Manager   string
	Vat       string
	JoinDai   string
	JoinSai   string
	Migration string

	// FromBlock overrides the chain default start block when non-zero.
	FromBlock    uint64
	Concurrency  int
	BatchSize    uint64
	Out          string
	PostgresDSN  string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
	Trace        bool
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CDP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("manager", DefaultManager)
	v.SetDefault("vat", DefaultVat)
	v.SetDefault("join-dai", DefaultJoinDai)
	v.SetDefault("join-sai", DefaultJoinSai)
	v.SetDefault("migration", DefaultMigration)
	v.SetDefault("concurrency", 8)
	v.SetDefault("batch-size", uint64(0))
	v.SetDefault("out", "-")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

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
		RPCURL:       v.GetString("rpc"),
		CdpIDs:       getStringSlice(v, "cdp"),
		Ilk:          v.GetString("ilk"),
		Gem:          v.GetString("gem"),
		Urn:          v.GetString("urn"),
		Manager:      v.GetString("manager"),
		Vat:          v.GetString("vat"),
		JoinDai:      v.GetString("join-dai"),
		JoinSai:      v.GetString("join-sai"),
		Migration:    v.GetString("migration"),
		FromBlock:    v.GetUint64("from"),
		Concurrency:  v.GetInt("concurrency"),
		BatchSize:    v.GetUint64("batch-size"),
		Out:          v.GetString("out"),
		PostgresDSN:  v.GetString("pg-dsn"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
		Trace:        v.GetBool("trace"),
	}

	return cfg, nil
}

// Validate checks values that do not need the chain.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if len(c.CdpIDs) == 0 {
		return fmt.Errorf("at least one cdp id is required")
	}
	if len(c.CdpIDs) > 1 && (c.Ilk != "" || c.Urn != "") {
		return fmt.Errorf("ilk and urn overrides need exactly one cdp id")
	}
	if (c.Ilk == "") != (c.Urn == "") {
		return fmt.Errorf("ilk and urn must be given together")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0")
	}
	if _, err := c.Contracts(); err != nil {
		return err
	}
	return nil
}

// Contracts parses the configured contract addresses.
func (c Config) Contracts() (model.Contracts, error) {
	var out model.Contracts
	fields := []struct {
		name  string
		input string
		dst   *common.Address
	}{
		{"manager", c.Manager, &out.Manager},
		{"vat", c.Vat, &out.Vat},
		{"join-dai", c.JoinDai, &out.DaiJoin},
		{"join-sai", c.JoinSai, &out.SaiJoin},
		{"migration", c.Migration, &out.Migration},
	}
	for _, f := range fields {
		addr, err := chain.ParseAddress(f.name, f.input)
		if err != nil {
			return model.Contracts{}, err
		}
		*f.dst = addr
	}
	if out.Manager == (common.Address{}) || out.Vat == (common.Address{}) {
		return model.Contracts{}, fmt.Errorf("manager and vat addresses are required")
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
