package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// Duration decodes "1s"-style strings from both TOML and YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Log       LogConfig                 `toml:"log" yaml:"log"`
	HTTP      HTTPConfig                `toml:"http" yaml:"http"`
	Monitor   MonitorConfig             `toml:"monitor" yaml:"monitor"`
	Triangle  TriangleConfig            `toml:"triangle" yaml:"triangle"`
	Spread    SpreadConfig              `toml:"spread" yaml:"spread"`
	Publish   PublishConfig             `toml:"publish" yaml:"publish"`
	Exchanges map[string]ExchangeConfig `toml:"exchanges" yaml:"exchanges"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Pretty bool   `toml:"pretty" yaml:"pretty"`
}

type HTTPConfig struct {
	// Addr is empty to disable the HTTP surface.
	Addr string `toml:"addr" yaml:"addr"`
}

type MonitorConfig struct {
	TopN            int      `toml:"top_n" yaml:"top_n"`
	RefreshInterval Duration `toml:"refresh_interval" yaml:"refresh_interval"`
	ClockSync       Duration `toml:"clock_sync_interval" yaml:"clock_sync_interval"`
	StreamRetry     Duration `toml:"stream_retry" yaml:"stream_retry"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type TriangleConfig struct {
	Exchange    string   `toml:"exchange" yaml:"exchange"`
	BatchSize   int      `toml:"batch_size" yaml:"batch_size"`
	Stablecoins []string `toml:"stablecoins" yaml:"stablecoins"`
	Fiat        []string `toml:"fiat" yaml:"fiat"`
}

type SpreadConfig struct {
	Panel     string   `toml:"panel" yaml:"panel"`
	MarketA   string   `toml:"market_a" yaml:"market_a"`
	MarketB   string   `toml:"market_b" yaml:"market_b"`
	Quote     string   `toml:"quote_currency" yaml:"quote_currency"`
	Symbols   []string `toml:"symbols" yaml:"symbols"`
	BatchSize int      `toml:"batch_size" yaml:"batch_size"`
}

type PublishConfig struct {
	Panel     bool     `toml:"panel" yaml:"panel"`
	IPCSocket string   `toml:"ipc_socket" yaml:"ipc_socket"`
	SHMPath   string   `toml:"shm_path" yaml:"shm_path"`
	RedisAddr string   `toml:"redis_addr" yaml:"redis_addr"`
	RedisKey  string   `toml:"redis_key" yaml:"redis_key"`
	RedisTTL  Duration `toml:"redis_ttl" yaml:"redis_ttl"`
}

type ExchangeConfig struct {
	// Disabled makes exchanges.New refuse the venue.
	Disabled bool   `toml:"disabled" yaml:"disabled"`
	Testnet  bool   `toml:"testnet" yaml:"testnet"`
	WSURL    string `toml:"ws_url" yaml:"ws_url"`
	RESTURL  string `toml:"rest_url" yaml:"rest_url"`
	// Symbols maps a BASE-QUOTE pair to the venue symbol. Only the mock venue
	// reads it, as its catalog.
	Symbols map[string]string `toml:"symbols" yaml:"symbols"`
}

// Default mirrors the command-line defaults of the monitor.
func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Addr: ":9090"},
		Monitor: MonitorConfig{
			TopN:            20,
			RefreshInterval: Duration{time.Second},
			ClockSync:       Duration{10 * time.Second},
			StreamRetry:     Duration{5 * time.Second},
			ShutdownTimeout: Duration{5 * time.Second},
		},
		Triangle: TriangleConfig{Exchange: "okx", BatchSize: 20},
		Spread: SpreadConfig{
			Panel:     "orderbook",
			MarketA:   "binance.spot",
			MarketB:   "okx.swap.linear",
			Quote:     "USDT",
			BatchSize: 50,
		},
		Publish: PublishConfig{
			Panel:    true,
			RedisKey: "arbmon:top",
			RedisTTL: Duration{10 * time.Second},
		},
		Exchanges: map[string]ExchangeConfig{},
	}
}

// Load builds the configuration: defaults, then the file at path (TOML, or
// YAML by extension; empty path falls back to ARBMON_CONFIG), then ARBMON_*
// environment overrides. A .env in the working directory is loaded first and
// never overrides variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c := Default()
	if path == "" {
		path = os.Getenv("ARBMON_CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(b, c)
		default:
			err = toml.Unmarshal(b, c)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(c); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnv(c *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &market.ConfigError{Field: key, Value: v, Reason: "not an integer"}
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return &market.ConfigError{Field: key, Value: v, Reason: "not a duration"}
		}
		return nil
	}

	str("ARBMON_LOG_LEVEL", &c.Log.Level)
	if v := os.Getenv("ARBMON_LOG_PRETTY"); v == "1" || v == "true" {
		c.Log.Pretty = true
	}
	str("ARBMON_HTTP_ADDR", &c.HTTP.Addr)
	str("ARBMON_TRIANGLE_EXCHANGE", &c.Triangle.Exchange)
	str("ARBMON_SPREAD_PANEL", &c.Spread.Panel)
	str("ARBMON_MARKET_A", &c.Spread.MarketA)
	str("ARBMON_MARKET_B", &c.Spread.MarketB)
	str("ARBMON_QUOTE_CURRENCY", &c.Spread.Quote)
	if v := os.Getenv("ARBMON_SYMBOLS"); v != "" {
		c.Spread.Symbols = splitCSV(v)
	}
	str("ARBMON_IPC_SOCKET", &c.Publish.IPCSocket)
	str("ARBMON_SHM_PATH", &c.Publish.SHMPath)
	str("ARBMON_REDIS_ADDR", &c.Publish.RedisAddr)

	for _, f := range []func() error{
		func() error { return num("ARBMON_TOP_N", &c.Monitor.TopN) },
		func() error { return num("ARBMON_TRIANGLE_BATCH_SIZE", &c.Triangle.BatchSize) },
		func() error { return num("ARBMON_SPREAD_BATCH_SIZE", &c.Spread.BatchSize) },
		func() error { return dur("ARBMON_REFRESH_INTERVAL", &c.Monitor.RefreshInterval) },
		func() error { return dur("ARBMON_SHUTDOWN_TIMEOUT", &c.Monitor.ShutdownTimeout) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks everything that must hold before any network access.
func (c *Config) Validate() error {
	if _, err := market.ParseMarket(c.Spread.MarketA); err != nil {
		return err
	}
	if _, err := market.ParseMarket(c.Spread.MarketB); err != nil {
		return err
	}
	if _, err := market.ParseMode(c.Spread.Panel); err != nil {
		return err
	}
	if strings.TrimSpace(c.Triangle.Exchange) == "" {
		return &market.ConfigError{Field: "triangle.exchange", Reason: "must not be empty"}
	}
	positive := map[string]int{
		"monitor.top_n":       c.Monitor.TopN,
		"triangle.batch_size": c.Triangle.BatchSize,
		"spread.batch_size":   c.Spread.BatchSize,
	}
	for field, v := range positive {
		if v <= 0 {
			return &market.ConfigError{Field: field, Value: strconv.Itoa(v), Reason: "must be positive"}
		}
	}
	durations := map[string]Duration{
		"monitor.refresh_interval":    c.Monitor.RefreshInterval,
		"monitor.clock_sync_interval": c.Monitor.ClockSync,
		"monitor.stream_retry":        c.Monitor.StreamRetry,
		"monitor.shutdown_timeout":    c.Monitor.ShutdownTimeout,
	}
	for field, d := range durations {
		if d.Duration <= 0 {
			return &market.ConfigError{Field: field, Value: d.String(), Reason: "must be positive"}
		}
	}
	return nil
}

// Exchange returns the section for name, zero-valued when absent.
func (c *Config) Exchange(name string) ExchangeConfig {
	return c.Exchanges[name]
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
