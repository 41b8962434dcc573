package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Loyverse  LoyverseConfig  `mapstructure:"loyverse"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Counter   CounterConfig   `mapstructure:"counter"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr        string `mapstructure:"addr"`
	FrontendURL string `mapstructure:"frontend_url"`
	AdminKey    string `mapstructure:"admin_key"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"`
}

type LoyverseConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	PageLimit int           `mapstructure:"page_limit"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type WalletConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	SaveURLBase     string        `mapstructure:"save_url_base"`
	IssuerID        string        `mapstructure:"issuer_id"`
	ClassSuffix     string        `mapstructure:"class_suffix"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	CredentialsJSON string        `mapstructure:"credentials_json"`
	Origins         []string      `mapstructure:"origins"`
	TimeoutMs       int           `mapstructure:"timeout_ms"`
	PointsLabel     string        `mapstructure:"points_label"`
	WelcomeHeader   string        `mapstructure:"welcome_header"`
	WelcomeBody     string        `mapstructure:"welcome_body"`
	Program         ProgramConfig `mapstructure:"program"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// ProgramConfig describes the loyalty class created by `wallet init-class`.
type ProgramConfig struct {
	IssuerName      string `mapstructure:"issuer_name"`
	Name            string `mapstructure:"name"`
	LogoURI         string `mapstructure:"logo_uri"`
	HeroImageURI    string `mapstructure:"hero_image_uri"`
	BackgroundColor string `mapstructure:"background_color"`
}

// ClassID is the fully qualified loyalty class id (issuer.suffix).
func (w WalletConfig) ClassID() string {
	return w.IssuerID + "." + w.ClassSuffix
}

type SyncConfig struct {
	Mode     string        `mapstructure:"mode"` // embedded | kafka
	Interval time.Duration `mapstructure:"interval"`
	Workers  int           `mapstructure:"workers"`
}

type CounterConfig struct {
	Path  string `mapstructure:"path"`
	Width int    `mapstructure:"width"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type WebSocketConfig struct {
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type RateLimitConfig struct {
	RegisterPerMinute int `mapstructure:"register_per_minute"`
}

const (
	SyncModeEmbedded = "embedded"
	SyncModeKafka    = "kafka"
)

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (LOYALTY_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (LOYALTY_LOYVERSE_TOKEN, LOYALTY_WALLET_ISSUER_ID, ...)
	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot start with.
func (c Config) Validate() error {
	switch c.Sync.Mode {
	case SyncModeEmbedded, SyncModeKafka:
	default:
		return fmt.Errorf("sync.mode must be %q or %q, got %q", SyncModeEmbedded, SyncModeKafka, c.Sync.Mode)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Counter.Width <= 0 || c.Counter.Width > 18 {
		return fmt.Errorf("counter.width must be in 1..18, got %d", c.Counter.Width)
	}
	if c.Sync.Mode == SyncModeKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("sync.mode=kafka requires kafka.brokers")
	}
	return nil
}
