package config

import (
	"time"

	pkgconfig "github.com/caseportal/messaging/pkg/config"
	"github.com/caseportal/messaging/pkg/database"
	"github.com/caseportal/messaging/pkg/jwt"
	"github.com/caseportal/messaging/pkg/log"
	"github.com/caseportal/messaging/pkg/pubsub"
	"github.com/caseportal/messaging/pkg/storage"
)

type Config struct {
	Server     ServerConfig
	GRPC       GRPCConfig
	WebSocket  WebSocketConfig
	Auth       AuthConfig
	Database   database.Config
	Redis      RedisConfig
	Cache      CacheConfig
	Events     pubsub.Config
	Relay      RelayConfig
	Transcript TranscriptConfig
	Log        log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type GRPCConfig struct {
	Host    string
	Port    int
	Enabled bool
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	JWT           jwt.Config    `mapstructure:"jwt"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Enabled  bool
}

type CacheConfig struct {
	Enabled    bool
	KeyPrefix  string        `mapstructure:"key_prefix"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
	UnreadTTL  time.Duration `mapstructure:"unread_ttl"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
}

type RelayConfig struct {
	MaxContentLength int `mapstructure:"max_content_length"`
}

type TranscriptConfig struct {
	Enabled bool
	URLTTL  time.Duration  `mapstructure:"url_ttl"`
	Storage storage.Config `mapstructure:"storage"`
}

// Load reads ./config/config.yaml (if present) and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

// LoadFrom reads config.yaml from configPath and the environment.
func LoadFrom(configPath string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50090)
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 16384)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("auth.jwt.issuer", "caseportal-auth")
	v.SetDefault("auth.jwt.access_duration", "15m")
	v.SetDefault("auth.verify_timeout", "3s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "messaging.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.key_prefix", "messaging")
	v.SetDefault("cache.history_ttl", "5m")
	v.SetDefault("cache.unread_ttl", "30s")
	v.SetDefault("cache.access_ttl", "1m")
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.redis.address", "localhost:6379")
	v.SetDefault("events.redis.pool_size", 10)
	v.SetDefault("events.kafka.brokers", "localhost:9092")
	v.SetDefault("events.kafka.group_id", "messaging-gateway")
	v.SetDefault("events.kafka.partitions", 4)
	v.SetDefault("relay.max_content_length", 8000)
	v.SetDefault("transcript.enabled", true)
	v.SetDefault("transcript.url_ttl", "15m")
	v.SetDefault("transcript.storage.driver", "local")
	v.SetDefault("transcript.storage.local.base_path", "./data/transcripts")
	v.SetDefault("transcript.storage.s3.region", "us-east-1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "messaging-gateway")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("auth.jwt.public_key_path", "JWT_PUBLIC_KEY_PATH")
	v.BindEnv("auth.jwt.hmac_secret", "JWT_HMAC_SECRET")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("events.driver", "EVENTS_DRIVER")
	v.BindEnv("events.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("transcript.storage.driver", "TRANSCRIPT_STORAGE")
	v.BindEnv("transcript.storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("transcript.storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("transcript.storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("transcript.storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.ReadTimeout = pkgconfig.Duration(v, "server.read_timeout", 15*time.Second)
	cfg.Server.WriteTimeout = pkgconfig.Duration(v, "server.write_timeout", 15*time.Second)
	cfg.Server.IdleTimeout = pkgconfig.Duration(v, "server.idle_timeout", 60*time.Second)
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Auth.JWT.AccessDuration = pkgconfig.Duration(v, "auth.jwt.access_duration", 15*time.Minute)
	cfg.Auth.VerifyTimeout = pkgconfig.Duration(v, "auth.verify_timeout", 3*time.Second)
	cfg.Cache.HistoryTTL = pkgconfig.Duration(v, "cache.history_ttl", 5*time.Minute)
	cfg.Cache.UnreadTTL = pkgconfig.Duration(v, "cache.unread_ttl", 30*time.Second)
	cfg.Cache.AccessTTL = pkgconfig.Duration(v, "cache.access_ttl", time.Minute)
	cfg.Events.Redis.ReadTimeout = pkgconfig.Duration(v, "events.redis.read_timeout", 3*time.Second)
	cfg.Events.Redis.WriteTimeout = pkgconfig.Duration(v, "events.redis.write_timeout", 3*time.Second)
	cfg.Transcript.URLTTL = pkgconfig.Duration(v, "transcript.url_ttl", 15*time.Minute)

	// Ping must fire inside the pong window or healthy clients time out.
	if cfg.WebSocket.PingInterval >= cfg.WebSocket.PongWait {
		cfg.WebSocket.PingInterval = cfg.WebSocket.PongWait * 9 / 10
	}

	return &cfg, nil
}
