package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port     string `mapstructure:"port"`
		Env      string `mapstructure:"env"`
		LogLevel string `mapstructure:"logLevel"`
		SiteURL  string `mapstructure:"siteUrl"` // Используется для success/cancel URL checkout-сессии
	} `mapstructure:"app"`
	Database struct {
		DSN             string        `mapstructure:"dsn"`
		MaxOpenConns    int           `mapstructure:"maxOpenConns"`
		MaxIdleConns    int           `mapstructure:"maxIdleConns"`
		ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
		AutoMigrate     bool          `mapstructure:"autoMigrate"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey          string        `mapstructure:"apiKey"`
		WebhookSecret   string        `mapstructure:"webhookSecret"`
		RetryMaxElapsed time.Duration `mapstructure:"retryMaxElapsed"`
	} `mapstructure:"stripe"`
	Identity struct {
		URL            string        `mapstructure:"url"`
		AnonKey        string        `mapstructure:"anonKey"`
		ServiceRoleKey string        `mapstructure:"serviceRoleKey"`
		Timeout        time.Duration `mapstructure:"timeout"`
	} `mapstructure:"identity"`
	GRPC struct {
		Port    string `mapstructure:"port"`
		Enabled bool   `mapstructure:"enabled"`
	} `mapstructure:"grpc"`
	Auth struct {
		// JWTSecret - секрет Supabase для HS256 access-токенов. Пустой -> токены проверяются через identity API.
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	Leads struct {
		WebhookURL string        `mapstructure:"webhookUrl"`
		Source     string        `mapstructure:"source"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"leads"`
	Plans []Plan `mapstructure:"plans"`
}

// Plan - тарифный план из прайс-листа лендинга.
type Plan struct {
	Name           string   `mapstructure:"name" json:"name"`
	Description    string   `mapstructure:"description" json:"description"`
	MonthlyPrice   float64  `mapstructure:"monthlyPrice" json:"monthlyPrice"`
	AnnualPrice    float64  `mapstructure:"annualPrice" json:"annualPrice"`
	PriceIDMonthly string   `mapstructure:"priceIdMonthly" json:"priceIdMonthly"`
	PriceIDAnnual  string   `mapstructure:"priceIdAnnual" json:"priceIdAnnual"`
	Features       []string `mapstructure:"features" json:"features"`
	Popular        bool     `mapstructure:"popular" json:"popular"`
}

// IsProduction сообщает, запущено ли приложение в production окружении.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Stripe.APIKey == "" {
		errs = append(errs, errors.New("stripe.apiKey is required"))
	}
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("stripe.webhookSecret is required"))
	}
	if c.Identity.URL == "" {
		errs = append(errs, errors.New("identity.url is required"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.siteUrl", "http://localhost:3000")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 2)
	v.SetDefault("database.connMaxLifetime", time.Hour)
	v.SetDefault("database.autoMigrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 15*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "subscription_status_changed")

	v.SetDefault("stripe.apiKey", "")
	v.SetDefault("stripe.webhookSecret", "")
	v.SetDefault("stripe.retryMaxElapsed", 30*time.Second)

	v.SetDefault("identity.url", "")
	v.SetDefault("identity.anonKey", "")
	v.SetDefault("identity.serviceRoleKey", "")
	v.SetDefault("identity.timeout", 10*time.Second)

	v.SetDefault("grpc.port", "50051")
	v.SetDefault("grpc.enabled", false)

	v.SetDefault("auth.jwtSecret", "")

	v.SetDefault("leads.webhookUrl", "")
	v.SetDefault("leads.source", "checkout-service")
	v.SetDefault("leads.timeout", 5*time.Second)
}

// LoadConfig загружает конфигурацию из файла и переменных окружения.
// Переменные окружения имеют приоритет: app.port -> APP_PORT, плюс алиасы из bindAliases.
func LoadConfig(configFile string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// .env необязателен
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Чтение переменных окружения
	bindAliases(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: failed to read %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	return &cfg, nil
}

// bindAliases привязывает привычные имена переменных (как в Supabase/Stripe доках).
func bindAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"database.dsn":            {"DATABASE_DSN", "DATABASE_URL"},
		"stripe.apiKey":           {"STRIPE_API_KEY", "STRIPE_SECRET_KEY"},
		"stripe.webhookSecret":    {"STRIPE_WEBHOOK_SECRET", "STRIPE_WEBHOOK_SIGNING_SECRET"},
		"identity.url":            {"SUPABASE_URL"},
		"identity.anonKey":        {"SUPABASE_ANON_KEY"},
		"identity.serviceRoleKey": {"SUPABASE_SERVICE_ROLE_KEY"},
		"auth.jwtSecret":          {"SUPABASE_JWT_SECRET", "AUTH_JWT_SECRET"},
		"app.siteUrl":             {"SITE_URL"},
		"app.logLevel":            {"LOG_LEVEL"},
		"leads.webhookUrl":        {"LEADS_WEBHOOK_URL"},
		"redis.addr":              {"REDIS_ADDR"},
		"kafka.brokers":           {"KAFKA_BROKERS"},
	}
	for key, envs := range aliases {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
}
