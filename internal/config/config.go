package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Configuration struct {
	Server   ServerConfig   `validate:"required"`
	Postgres PostgresConfig `validate:"required"`
	Logging  LoggingConfig  `validate:"required"`
	Auth     AuthConfig
	CORS     CORSConfig
	Guardian GuardianConfig `validate:"required"`
	Geo      GeoConfig      `validate:"required"`
	Cache    CacheConfig    `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
	Mode    string `validate:"oneof=debug release test"`
}

type PostgresConfig struct {
	Host         string `validate:"required"`
	Port         int    `validate:"required"`
	User         string `validate:"required"`
	Password     string
	DBName       string `mapstructure:"dbname" validate:"required"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

type AuthConfig struct {
	// JWTSecret enables bearer token identities when set
	JWTSecret string `mapstructure:"jwt_secret"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// GuardianConfig points at the authorization service
type GuardianConfig struct {
	URL           string        `validate:"required,url"`
	Timeout       time.Duration `validate:"required"`
	RetryCount    int           `mapstructure:"retry_count" validate:"gte=0"`
	MinPermission int           `mapstructure:"min_permission"`
	MaxPermission int           `mapstructure:"max_permission" validate:"gtefield=MinPermission"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// GeoConfig points at the country authority
type GeoConfig struct {
	URL        string        `validate:"required,url"`
	Timeout    time.Duration `validate:"required"`
	RetryCount int           `mapstructure:"retry_count" validate:"gte=0"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type CacheConfig struct {
	Backend string `validate:"oneof=memory redis"`
	Redis   RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewConfig() (*Configuration, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pluto")

	v.SetEnvPrefix("PLUTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults mirrors the local development profile. Registering every key is
// also what makes AutomaticEnv visible to Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "pluto")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("guardian.url", "http://localhost:8080/resources/authorization/permission")
	v.SetDefault("guardian.timeout", 5*time.Second)
	v.SetDefault("guardian.retry_count", 2)
	v.SetDefault("guardian.min_permission", 0)
	v.SetDefault("guardian.max_permission", 2)
	v.SetDefault("guardian.cache_ttl", 30*time.Second)

	v.SetDefault("geo.url", "http://localhost:8080/resources/geo/countries")
	v.SetDefault("geo.timeout", 5*time.Second)
	v.SetDefault("geo.retry_count", 2)
	v.SetDefault("geo.cache_ttl", 10*time.Minute)

	v.SetDefault("cache.backend", CacheBackendMemory)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a configuration for local development and tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Server: ServerConfig{Address: ":8080", Mode: "debug"},
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "pluto",
			SSLMode: "disable",
		},
		Logging: LoggingConfig{Level: "debug", Format: "console"},
		Guardian: GuardianConfig{
			URL:           "http://localhost:8080/resources/authorization/permission",
			Timeout:       5 * time.Second,
			MinPermission: 0,
			MaxPermission: 2,
			CacheTTL:      30 * time.Second,
		},
		Geo: GeoConfig{
			URL:      "http://localhost:8080/resources/geo/countries",
			Timeout:  5 * time.Second,
			CacheTTL: 10 * time.Minute,
		},
		Cache: CacheConfig{Backend: CacheBackendMemory},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
