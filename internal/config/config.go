package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quillchat/quill/internal/storage"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// WebSocketConfig controls the per-connection liveness state machine and
// write behavior.
type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string        `mapstructure:"issuer"`
}

type DatabaseConfig struct {
	Driver          string // postgres, mysql, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"db_name"`
	SSLMode         string `mapstructure:"ssl_mode"` // postgres only
	FilePath        string `mapstructure:"file_path"` // sqlite only
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
}

// StorageConfig selects the attachment blob store. SyncWrites makes
// attachment persistence synchronous: a failed blob write then fails the
// whole send instead of proceeding with the filename reference.
type StorageConfig struct {
	Driver     string              `mapstructure:"driver"` // local, s3
	SyncWrites bool                `mapstructure:"sync_writes"`
	Local      storage.LocalConfig `mapstructure:"local"`
	S3         storage.S3Config    `mapstructure:"s3"`
}

type CORSConfig struct {
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from ./config/config.yaml plus environment
// variables, with defaults for every key.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, rely on defaults and env vars.
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("websocket.ping_interval", "5s")
	v.SetDefault("websocket.pong_wait", "1s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 16<<20)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "72h")
	v.SetDefault("auth.issuer", "quill")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "quill.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.sync_writes", false)
	v.SetDefault("storage.local.base_path", "uploads")
	v.SetDefault("cors.allowed_origin", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("auth.secret", "JWT_KEY")
	v.BindEnv("cors.allowed_origin", "CLIENT_URL")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 5*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Auth.TokenTTL = parseDuration(v, "auth.token_ttl", 72*time.Hour)

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth.secret (JWT_KEY) is required")
	}

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
