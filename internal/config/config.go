package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration for the viewer and simulator binaries.
type Config struct {
	Endpoints EndpointsConfig
	Session   SessionConfig
	WebSocket WebSocketConfig
	Sim       SimConfig
	Log       LogConfig
}

// EndpointsConfig locates the platform services.
type EndpointsConfig struct {
	RoomServiceURL    string `mapstructure:"room_service_url"`
	HistoryServiceURL string `mapstructure:"history_service_url"`
	MessagingURL      string `mapstructure:"messaging_url"`
	MediaServerURL    string `mapstructure:"media_server_url"`
}

// SessionConfig tunes the live session coordinator.
type SessionConfig struct {
	RetryLimit       int           `mapstructure:"retry_limit"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	LoadTimeout      time.Duration `mapstructure:"load_timeout"`
	HistoryLimit     int           `mapstructure:"history_limit"`
	ViewerName       string        `mapstructure:"viewer_name"`
}

// WebSocketConfig tunes the messaging channel.
type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// SimConfig tunes the local development backend.
type SimConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	DBPath           string        `mapstructure:"db_path"`
	CredentialSecret string        `mapstructure:"credential_secret"`
	CredentialTTL    time.Duration `mapstructure:"credential_ttl"`
	ViewerStore      string        `mapstructure:"viewer_store"` // memory or redis
	Redis            RedisConfig
	// DuplicateEvery > 0 re-delivers every Nth chat message to exercise
	// client-side dedup.
	DuplicateEvery int `mapstructure:"duplicate_every"`
}

// RedisConfig locates the redis viewer-count store.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LogConfig tunes logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from ./config/config.yaml and environment
// variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Defaults
	v.SetDefault("endpoints.room_service_url", "http://localhost:8090")
	v.SetDefault("endpoints.history_service_url", "http://localhost:8090")
	v.SetDefault("endpoints.messaging_url", "ws://localhost:8090/ws")
	v.SetDefault("endpoints.media_server_url", "http://localhost:8091/subscribe")
	v.SetDefault("session.retry_limit", 3)
	v.SetDefault("session.reconnect_backoff", "5s")
	v.SetDefault("session.load_timeout", "10s")
	v.SetDefault("session.history_limit", 50)
	v.SetDefault("session.viewer_name", "viewer")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("sim.host", "0.0.0.0")
	v.SetDefault("sim.port", 8090)
	v.SetDefault("sim.db_path", "sim.db")
	v.SetDefault("sim.credential_secret", "dev-only-secret")
	v.SetDefault("sim.credential_ttl", "2m")
	v.SetDefault("sim.viewer_store", "memory")
	v.SetDefault("sim.redis.address", "localhost:6379")
	v.SetDefault("sim.redis.password", "")
	v.SetDefault("sim.redis.db", 0)
	v.SetDefault("sim.redis.key_prefix", "live:viewers:")
	v.SetDefault("sim.duplicate_every", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Environment overrides
	v.BindEnv("endpoints.room_service_url", "ROOM_SERVICE_URL")
	v.BindEnv("endpoints.history_service_url", "HISTORY_SERVICE_URL")
	v.BindEnv("endpoints.messaging_url", "MESSAGING_URL")
	v.BindEnv("endpoints.media_server_url", "MEDIA_SERVER_URL")
	v.BindEnv("sim.port", "SIM_PORT")
	v.BindEnv("sim.db_path", "SIM_DB_PATH")
	v.BindEnv("sim.credential_secret", "SIM_CREDENTIAL_SECRET")
	v.BindEnv("sim.viewer_store", "SIM_VIEWER_STORE")
	v.BindEnv("sim.redis.address", "REDIS_ADDRESS")
	v.BindEnv("sim.redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Session.ReconnectBackoff = parseDuration(v, "session.reconnect_backoff", 5*time.Second)
	cfg.Session.LoadTimeout = parseDuration(v, "session.load_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Sim.CredentialTTL = parseDuration(v, "sim.credential_ttl", 2*time.Minute)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
