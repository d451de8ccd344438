package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Port     string
	LogLevel string
	Store    string

	MySQL MySQL
	Redis Redis

	RabbitMQURL      string
	RabbitMQExchange string

	CatalogURL       string
	CatalogTimeout   time.Duration
	DefaultUnitPrice int64
	PriceCacheTTL    time.Duration
	PriceWarmupIDs   []uint64

	JWTSecret         string
	StrictTransitions bool

	JaegerEndpoint string
}

type MySQL struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

func (m MySQL) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.User, m.Password, m.Host, m.Port, m.Database)
}

type Redis struct {
	Host string
	Port string
}

// Addr is empty when no Redis host is configured.
func (r Redis) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(env(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		Port:     env("PORT", "8080"),
		LogLevel: env("LOG_LEVEL", "info"),
		Store:    env("ORDER_STORE", StoreMySQL),
		MySQL: MySQL{
			User:     env("MYSQL_USER", "root"),
			Password: env("MYSQL_PASSWORD", ""),
			Host:     env("MYSQL_HOST", "localhost"),
			Port:     env("MYSQL_PORT", "3306"),
			Database: env("MYSQL_DATABASE", "orders"),
		},
		Redis: Redis{
			Host: env("REDIS_HOST", ""),
			Port: env("REDIS_PORT", "6379"),
		},
		RabbitMQURL:      env("RABBITMQ_URL", ""),
		RabbitMQExchange: env("RABBITMQ_EXCHANGE", "order.exchange"),
		CatalogURL:       strings.TrimRight(env("CATALOG_URL", ""), "/"),
		CatalogTimeout:   duration("CATALOG_TIMEOUT", "2s"),
		PriceCacheTTL:    duration("PRICE_CACHE_TTL", "1m"),
		JWTSecret:        env("AUTH_JWT_SECRET", ""),
		JaegerEndpoint:   env("JAEGER_ENDPOINT", ""),
	}

	price, err := strconv.ParseInt(env("DEFAULT_UNIT_PRICE", "100"), 10, 64)
	if err != nil || price < 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_UNIT_PRICE: must be a non-negative integer"))
	}
	cfg.DefaultUnitPrice = price

	strict, err := strconv.ParseBool(env("ORDER_STRICT_TRANSITIONS", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("ORDER_STRICT_TRANSITIONS: %w", err))
	}
	cfg.StrictTransitions = strict

	if raw := env("PRICE_WARMUP_IDS", ""); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("PRICE_WARMUP_IDS: %q is not a product id", part))
				continue
			}
			cfg.PriceWarmupIDs = append(cfg.PriceWarmupIDs, id)
		}
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if cfg.Store != StoreMySQL && cfg.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("ORDER_STORE: unknown store %q", cfg.Store))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}
