package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort    int    `mapstructure:"http_port"`
	GRPCPort    int    `mapstructure:"grpc_port"` // 0 disables the gRPC listener
	LogLevel    string `mapstructure:"log_level"`
	ServiceName string `mapstructure:"service_name"`

	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Token    TokenConfig    `mapstructure:"token"`
	Media    MediaConfig    `mapstructure:"media"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Consul   ConsulConfig   `mapstructure:"consul"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, mysql or postgres
	URL    string `mapstructure:"url"`
}

// RedisConfig selects the Redis session store when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TokenConfig struct {
	Secret      string        `mapstructure:"secret"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type MediaConfig struct {
	Root           string `mapstructure:"root"`
	URLPrefix      string `mapstructure:"url_prefix"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ConsulConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Address     string `mapstructure:"address"`
	ServiceHost string `mapstructure:"service_host"`
}

// AdminConfig seeds a superuser on startup when both fields are set.
type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

const insecureDefaultSecret = "default-very-insecure-secret-key"

var AppConfig Config

// Load reads configuration from an optional .env file, a yaml config file and
// RECIPE_* environment variables, in increasing order of precedence.
// An empty path searches "." and "./config" for config.yaml.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("RECIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fatal error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// InitConfig loads configuration into AppConfig and panics on failure.
func InitConfig(path string) {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	AppConfig = *cfg
}

// UsesInsecureSecret reports whether tokens are signed with the built-in default secret.
func (c *Config) UsesInsecureSecret() bool {
	return c.Token.Secret == insecureDefaultSecret
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 8080)
	v.SetDefault("grpc_port", 50051)
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "recipe-api")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "recipe.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("token.secret", insecureDefaultSecret)
	v.SetDefault("token.max_lifetime", "168h")
	v.SetDefault("token.idle_timeout", "24h")

	v.SetDefault("media.root", "./media")
	v.SetDefault("media.url_prefix", "/media")
	v.SetDefault("media.max_upload_bytes", 10<<20)

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("consul.enabled", false)
	v.SetDefault("consul.address", "127.0.0.1:8500")
	v.SetDefault("consul.service_host", "127.0.0.1")

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Token.Secret == "" {
		return errors.New("token.secret must not be empty")
	}
	if c.Token.MaxLifetime <= 0 || c.Token.IdleTimeout <= 0 {
		return errors.New("token.max_lifetime and token.idle_timeout must be positive")
	}
	if c.Media.MaxUploadBytes <= 0 {
		return errors.New("media.max_upload_bytes must be positive")
	}
	return nil
}
