package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	Redis       RedisConfig       `json:"redis" yaml:"redis"`
	Logger      LoggerConfig      `json:"logger" yaml:"logger"`
	Sale        SaleConfig        `json:"sale" yaml:"sale"`
	Chain       ChainConfig       `json:"chain" yaml:"chain"`
	Keeper      KeeperConfig      `json:"keeper" yaml:"keeper"`
	Dispatcher  DispatcherConfig  `json:"dispatcher" yaml:"dispatcher"`
	Rates       []RateConfig      `json:"rates" yaml:"rates"`
	AddressBook AddressBookConfig `json:"address_book" yaml:"address_book"`
}

type ServerConfig struct {
	Host            string   `json:"host" yaml:"host"`
	Port            int      `json:"port" yaml:"port"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	// MetricsAddr serves /metrics on a separate listener when set.
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
}

// DatabaseConfig selects the SQL store. Driver is one of "postgres", "pgx" or
// "sqlite3"; an empty driver keeps state in process memory.
type DatabaseConfig struct {
	Driver       string `json:"driver" yaml:"driver"`
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	User         string `json:"user" yaml:"user"`
	Password     string `json:"password" yaml:"password"`
	DBName       string `json:"dbname" yaml:"dbname"`
	SSLMode      string `json:"sslmode" yaml:"sslmode"`
	Path         string `json:"path" yaml:"path"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns"`
}

// RedisConfig enables the distributed call lock and the message stream when Host is set.
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Stream   string `json:"stream" yaml:"stream"`
}

type LoggerConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

type SaleConfig struct {
	Contract      string   `json:"contract" yaml:"contract"`
	LockTTL       Duration `json:"lock_ttl" yaml:"lock_ttl"`
	RetryAttempts int      `json:"retry_attempts" yaml:"retry_attempts"`
}

// ChainConfig drives the block oracle: one block per BlockInterval since GenesisTime.
type ChainConfig struct {
	GenesisTime   time.Time `json:"genesis_time" yaml:"genesis_time"`
	GenesisHeight uint64    `json:"genesis_height" yaml:"genesis_height"`
	BlockInterval Duration  `json:"block_interval" yaml:"block_interval"`
}

type KeeperConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Interval   Duration `json:"interval" yaml:"interval"`
	BatchLimit uint32   `json:"batch_limit" yaml:"batch_limit"`
	Sender     string   `json:"sender" yaml:"sender"`
}

type DispatcherConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Interval    Duration `json:"interval" yaml:"interval"`
	BatchSize   int      `json:"batch_size" yaml:"batch_size"`
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
}

type RateConfig struct {
	Name      string `json:"name" yaml:"name"`
	Recipient string `json:"recipient" yaml:"recipient"`
	Percent   string `json:"percent" yaml:"percent"`
	Deductive bool   `json:"deductive" yaml:"deductive"`
}

type AddressBookConfig struct {
	Strict  bool              `json:"strict" yaml:"strict"`
	Entries map[string]string `json:"entries" yaml:"entries"`
}

// Duration reads "10s"-style strings from both JSON and YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads a JSON or YAML file (chosen by extension), applies
// environment overrides and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CROWDFUND_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("CROWDFUND_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CROWDFUND_LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout.Duration = 5 * time.Second
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 10 * time.Second
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout.Duration = 10 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "crowdfund:messages"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Sale.Contract == "" {
		c.Sale.Contract = "crowdfund"
	}
	if c.Sale.LockTTL.Duration == 0 {
		c.Sale.LockTTL.Duration = 10 * time.Second
	}
	if c.Sale.RetryAttempts == 0 {
		c.Sale.RetryAttempts = 3
	}
	if c.Chain.GenesisTime.IsZero() {
		c.Chain.GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if c.Chain.BlockInterval.Duration == 0 {
		c.Chain.BlockInterval.Duration = 6 * time.Second
	}
	if c.Keeper.Interval.Duration == 0 {
		c.Keeper.Interval.Duration = 30 * time.Second
	}
	if c.Keeper.BatchLimit == 0 {
		c.Keeper.BatchLimit = 50
	}
	if c.Keeper.Sender == "" {
		c.Keeper.Sender = "keeper"
	}
	if c.Dispatcher.Interval.Duration == 0 {
		c.Dispatcher.Interval.Duration = time.Second
	}
	if c.Dispatcher.BatchSize == 0 {
		c.Dispatcher.BatchSize = 100
	}
	if c.Dispatcher.MaxAttempts == 0 {
		c.Dispatcher.MaxAttempts = 5
	}
}

func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite3" {
		return "file:" + c.Path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	}
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

func (c *RedisConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
