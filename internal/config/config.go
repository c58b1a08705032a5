package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/quocanhngo/managex/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Log      logger.Config
	DB       DBConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Fanout   FanoutConfig
	JWT      JWTConfig
	Device   DeviceConfig
	Presence PresenceConfig
	Geo      GeoConfig
	Usage    UsageConfig
	CORS     CORSConfig
	Admin    AdminConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type DBConfig struct {
	Driver   string // postgres | sqlite
	Path     string // sqlite database file
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type NATSConfig struct {
	URL string
}

// FanoutConfig selects the pub/sub relay: memory, redis or nats
type FanoutConfig struct {
	Backend string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type DeviceConfig struct {
	TokenSecret string
}

type PresenceConfig struct {
	Window        time.Duration
	SweepInterval time.Duration
}

type GeoConfig struct {
	DBPath  string
	Timeout time.Duration
}

// UsageConfig maps lower-cased process names to display names
type UsageConfig struct {
	Aliases map[string]string
}

type CORSConfig struct {
	Origins []string
}

// AdminConfig seeds the single administrator account when both fields are set
type AdminConfig struct {
	Email    string
	Password string
}

// DefaultAliases is the built-in process name table
var DefaultAliases = map[string]string{
	"chrome":  "Google Chrome",
	"msedge":  "Microsoft Edge",
	"code":    "VS Code",
	"postman": "Postman",
	"zoom":    "Zoom",
}

// Load reads configuration from .env, an optional YAML file (CONFIG_FILE) and
// environment variables, in increasing order of precedence
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, reading from environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to read config file")
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("app_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_output", "stdout")
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_path", "managex.db")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "managex")
	v.SetDefault("db_password", "managex")
	v.SetDefault("db_name", "managex")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", "6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("fanout_backend", "redis")
	v.SetDefault("jwt_secret", "default-secret")
	v.SetDefault("jwt_expiry", "24h")
	v.SetDefault("device_token_secret", "default-device-secret")
	v.SetDefault("presence_window", "2m")
	v.SetDefault("sweep_interval", "30s")
	v.SetDefault("geo_db_path", "")
	v.SetDefault("geo_timeout", "500ms")
	v.SetDefault("usage_aliases", "")
	v.SetDefault("cors_origins", "http://localhost:3000")
}

func fromViper(v *viper.Viper) *Config {
	env := v.GetString("app_env")

	return &Config{
		App: AppConfig{
			Env:  env,
			Port: v.GetString("app_port"),
		},
		Log: logger.Config{
			Level:   v.GetString("log_level"),
			Debug:   v.GetBool("debug"),
			Output:  v.GetString("log_output"),
			Console: env != "production",
		},
		DB: DBConfig{
			Driver:   strings.ToLower(v.GetString("db_driver")),
			Path:     v.GetString("db_path"),
			Host:     v.GetString("db_host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
			SSLMode:  v.GetString("db_sslmode"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis_host"),
			Port:     v.GetString("redis_port"),
			Password: v.GetString("redis_password"),
		},
		NATS: NATSConfig{
			URL: v.GetString("nats_url"),
		},
		Fanout: FanoutConfig{
			Backend: strings.ToLower(v.GetString("fanout_backend")),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt_secret"),
			Expiry: durationOr(v, "jwt_expiry", 24*time.Hour),
		},
		Device: DeviceConfig{
			TokenSecret: v.GetString("device_token_secret"),
		},
		Presence: PresenceConfig{
			Window:        durationOr(v, "presence_window", 2*time.Minute),
			SweepInterval: durationOr(v, "sweep_interval", 30*time.Second),
		},
		Geo: GeoConfig{
			DBPath:  v.GetString("geo_db_path"),
			Timeout: durationOr(v, "geo_timeout", 500*time.Millisecond),
		},
		Usage: UsageConfig{
			Aliases: loadAliases(v),
		},
		CORS: CORSConfig{
			Origins: strings.Split(v.GetString("cors_origins"), ","),
		},
		Admin: AdminConfig{
			Email:    v.GetString("admin_email"),
			Password: v.GetString("admin_password"),
		},
	}
}

// durationOr parses a duration key, falling back on an invalid or non-positive value
func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// loadAliases merges the built-in table with the YAML "aliases" map and the
// USAGE_ALIASES env var ("chrome=Google Chrome,code=VS Code")
func loadAliases(v *viper.Viper) map[string]string {
	aliases := make(map[string]string, len(DefaultAliases))
	for k, name := range DefaultAliases {
		aliases[k] = name
	}

	for k, name := range v.GetStringMapString("aliases") {
		aliases[strings.ToLower(k)] = name
	}

	return mergeAliasList(aliases, v.GetString("usage_aliases"))
}

func mergeAliasList(aliases map[string]string, raw string) map[string]string {
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		name := strings.TrimSpace(kv[1])
		if key == "" || name == "" {
			continue
		}
		aliases[key] = name
	}
	return aliases
}
