package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage and cart store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Port          int
	LogLevel      string
	Env           string
	PublicBaseURL string
	Storage       string
	CartStore     string
	DB            DBConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Admin         AdminConfig
	Telegram      TelegramConfig
	Outbox        OutboxConfig
	RateLimit     RateLimitConfig
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds the redis connection used for cart sessions
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

// KafkaConfig holds the broker settings. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers       []string
	OrdersTopic   string
	ConsumerGroup string
}

// AdminConfig holds the dashboard credential and token settings
type AdminConfig struct {
	Password  string
	JWTSecret string
	TokenTTL  time.Duration
}

// TelegramConfig configures new-order notifications to the shop owner
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// OutboxConfig tunes the event processor
type OutboxConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
}

// RateLimitConfig is the per-IP token bucket for public routes
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             float64
	LoginPerMinute    float64
	CheckoutPerMinute float64
	TrustForwardedFor bool
}

// getEnv retrieves the value of an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(defaultValue, 'f', -1, 64)), 64)

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, err := time.ParseDuration(getEnv(key, defaultValue.String()))

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func splitList(raw string) []string {
	var out []string

	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// Load reads the configuration from environment variables (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, err
	}

	dbPort, err := getInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cartTTL, err := getDuration("CART_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	tokenTTL, err := getDuration("ADMIN_TOKEN_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}

	pollInterval, err := getDuration("OUTBOX_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	batchSize, err := getInt("OUTBOX_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}

	maxRetries, err := getInt("OUTBOX_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	rps, err := getFloat("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, err
	}

	burst, err := getFloat("RATE_LIMIT_BURST", 30)
	if err != nil {
		return nil, err
	}

	loginPerMin, err := getFloat("LOGIN_RATE_LIMIT_PER_MIN", 10)
	if err != nil {
		return nil, err
	}

	checkoutPerMin, err := getFloat("CHECKOUT_RATE_LIMIT_PER_MIN", 10)
	if err != nil {
		return nil, err
	}

	trustForwarded, err := strconv.ParseBool(getEnv("TRUST_FORWARDED_FOR", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUST_FORWARDED_FOR: %w", err)
	}

	var chatID int64
	if raw := getEnv("TELEGRAM_CHAT_ID", ""); raw != "" {
		chatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}

	cfg := &Config{
		Port:          port,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Env:           getEnv("APP_ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		Storage:       getEnv("STORAGE_DRIVER", DriverMemory),
		CartStore:     getEnv("CART_STORE", DriverMemory),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "chickiemart"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			CartTTL:  cartTTL,
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			OrdersTopic:   getEnv("ORDERS_TOPIC", "chickiemart.orders"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "chickiemart-notifier"),
		},
		Admin: AdminConfig{
			Password:  getEnv("ADMIN_PASSWORD", "admin123"),
			JWTSecret: getEnv("JWT_SECRET", "change-me"),
			TokenTTL:  tokenTTL,
		},
		Telegram: TelegramConfig{
			Token:  getEnv("TELEGRAM_TOKEN", ""),
			ChatID: chatID,
		},
		Outbox: OutboxConfig{
			PollingInterval: pollInterval,
			BatchSize:       batchSize,
			MaxRetries:      maxRetries,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: rps,
			Burst:             burst,
			LoginPerMinute:    loginPerMin,
			CheckoutPerMinute: checkoutPerMin,
			TrustForwardedFor: trustForwarded,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Storage != DriverMemory && c.Storage != DriverPostgres {
		return fmt.Errorf("invalid STORAGE_DRIVER %q: want %s or %s", c.Storage, DriverMemory, DriverPostgres)
	}

	if c.CartStore != DriverMemory && c.CartStore != DriverRedis {
		return fmt.Errorf("invalid CART_STORE %q: want %s or %s", c.CartStore, DriverMemory, DriverRedis)
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 || c.RateLimit.LoginPerMinute <= 0 || c.RateLimit.CheckoutPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	if c.Admin.Password == "" {
		return fmt.Errorf("ADMIN_PASSWORD must not be empty")
	}

	return nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

// KafkaEnabled reports whether brokers were configured
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// TelegramEnabled reports whether owner notifications are configured
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != 0
}
