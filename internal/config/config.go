package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Exchange ExchangeConfig
	Bot      BotConfig
	Ads      AdsConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port         int
	Host         string
	UseHTTPS     bool
	CertFile     string
	KeyFile      string
	APIRateLimit float64 // запросов в секунду на один IP
	APIRateBurst int
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	APITokenHash  string // bcrypt-хэш операторского токена
	EncryptionKey string // hex, 64 символа = 32 байта для AES-256
}

// ExchangeConfig - настройки клиента P2P-площадки
type ExchangeConfig struct {
	BaseURL           string
	RecvWindow        int           // окно валидности подписи, мс
	RequestTimeout    time.Duration // таймаут одного HTTP-запроса
	RateLimit         float64       // запросов в секунду на один аккаунт
	RateBurst         float64
	ClockSyncInterval time.Duration // плановая пересинхронизация часов
}

// BotConfig - настройки движка
type BotConfig struct {
	// Периоды опроса по умолчанию; живые значения лежат в таблице settings
	// и правятся через API без перезапуска
	OrderPollInterval time.Duration // опрос открытых ордеров
	ChatPollInterval  time.Duration // опрос чатов активных сделок
	AdRefreshInterval time.Duration // пересчёт float-цен объявлений

	RequeueSweepInterval time.Duration // проход по очереди отложенных свидетельств
	ShutdownTimeout      time.Duration // ожидание воркеров при остановке

	// Retry для вызовов биржи
	MaxRetries   int
	RetryBackoff time.Duration

	// Retention завершённых сделок, переписок и уведомлений
	RetentionDays          int
	RetentionSweepInterval time.Duration
}

// AdsConfig - параметры объявлений, размещаемых под выплаты
type AdsConfig struct {
	Asset          string          // актив объявления (USDT)
	PriceMode      string          // fixed | float
	Premium        decimal.Decimal // % от рынка для float (102.5 = рынок +2.5%)
	FixedPrice     decimal.Decimal // цена за единицу актива для fixed
	PriceTick      decimal.Decimal // шаг цены площадки
	PaymentMethods []string        // ID платёжных методов площадки
	Remark         string          // текст условий в объявлении
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:     getEnvAsBool("USE_HTTPS", false),
			CertFile:     getEnv("CERT_FILE", ""),
			KeyFile:      getEnv("KEY_FILE", ""),
			APIRateLimit: getEnvAsFloat("API_RATE_LIMIT", 20),
			APIRateBurst: getEnvAsInt("API_RATE_BURST", 40),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "p2pdesk"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APITokenHash:  getEnv("API_TOKEN_HASH", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Exchange: ExchangeConfig{
			BaseURL:           getEnv("EXCHANGE_BASE_URL", "https://api.bybit.com"),
			RecvWindow:        getEnvAsInt("EXCHANGE_RECV_WINDOW", 5000),
			RequestTimeout:    getEnvAsDuration("EXCHANGE_TIMEOUT", 10*time.Second),
			RateLimit:         getEnvAsFloat("EXCHANGE_RATE_LIMIT", 5),
			RateBurst:         getEnvAsFloat("EXCHANGE_RATE_BURST", 10),
			ClockSyncInterval: getEnvAsDuration("CLOCK_SYNC_INTERVAL", 5*time.Minute),
		},
		Bot: BotConfig{
			OrderPollInterval:    getEnvAsDuration("ORDER_POLL_INTERVAL", 5*time.Second),
			ChatPollInterval:     getEnvAsDuration("CHAT_POLL_INTERVAL", 3*time.Second),
			AdRefreshInterval:    getEnvAsDuration("AD_REFRESH_INTERVAL", 1*time.Minute),
			RequeueSweepInterval: getEnvAsDuration("REQUEUE_SWEEP_INTERVAL", 30*time.Second),
			ShutdownTimeout:      getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

			MaxRetries:   getEnvAsInt("MAX_RETRIES", 4),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),

			RetentionDays:          getEnvAsInt("RETENTION_DAYS", 30),
			RetentionSweepInterval: getEnvAsDuration("RETENTION_SWEEP_INTERVAL", 1*time.Hour),
		},
		Ads: AdsConfig{
			Asset:          getEnv("AD_ASSET", "USDT"),
			PriceMode:      getEnv("AD_PRICE_MODE", "float"),
			Premium:        getEnvAsDecimal("AD_PREMIUM", "102.5"),
			FixedPrice:     getEnvAsDecimal("AD_FIXED_PRICE", "0"),
			PriceTick:      getEnvAsDecimal("AD_PRICE_TICK", "0.01"),
			PaymentMethods: getEnvAsList("AD_PAYMENT_METHODS", nil),
			Remark:         getEnv("AD_REMARK", ""),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", "stdout"),
			Development: getEnvAsBool("LOG_DEV", false),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей аккаунтов
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting account API keys")
	}

	raw, err := hex.DecodeString(c.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("ENCRYPTION_KEY must be a hex string: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must decode to exactly 32 bytes for AES-256, got %d", len(raw))
	}

	// API_TOKEN_HASH обязателен: без него операторский API открыт всем
	if c.Security.APITokenHash == "" {
		return fmt.Errorf("API_TOKEN_HASH is required for operator authentication")
	}

	if !strings.HasPrefix(c.Security.APITokenHash, "$2") {
		return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Валидация retry параметров
	if c.Bot.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES cannot be negative, got %d", c.Bot.MaxRetries)
	}

	if c.Bot.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES should not exceed 10, got %d", c.Bot.MaxRetries)
	}

	// Окно подписи: биржа отклоняет значения вне 1..60 секунд
	if c.Exchange.RecvWindow < 1000 || c.Exchange.RecvWindow > 60000 {
		return fmt.Errorf("EXCHANGE_RECV_WINDOW must be between 1000 and 60000 ms, got %d", c.Exchange.RecvWindow)
	}

	if c.Exchange.RequestTimeout <= 0 {
		return fmt.Errorf("EXCHANGE_TIMEOUT must be positive, got %v", c.Exchange.RequestTimeout)
	}

	if c.Exchange.RateLimit <= 0 {
		return fmt.Errorf("EXCHANGE_RATE_LIMIT must be positive, got %v", c.Exchange.RateLimit)
	}

	// Валидация периодов опроса
	if c.Bot.OrderPollInterval <= 0 {
		return fmt.Errorf("ORDER_POLL_INTERVAL must be positive, got %v", c.Bot.OrderPollInterval)
	}

	if c.Bot.ChatPollInterval <= 0 {
		return fmt.Errorf("CHAT_POLL_INTERVAL must be positive, got %v", c.Bot.ChatPollInterval)
	}

	if c.Bot.AdRefreshInterval <= 0 {
		return fmt.Errorf("AD_REFRESH_INTERVAL must be positive, got %v", c.Bot.AdRefreshInterval)
	}

	if c.Server.APIRateLimit <= 0 {
		return fmt.Errorf("API_RATE_LIMIT must be positive, got %v", c.Server.APIRateLimit)
	}

	if c.Bot.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1, got %d", c.Bot.RetentionDays)
	}

	// Валидация параметров объявлений
	switch c.Ads.PriceMode {
	case "fixed":
		if c.Ads.FixedPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("AD_FIXED_PRICE must be positive for fixed price mode")
		}
	case "float":
		if c.Ads.Premium.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("AD_PREMIUM must be positive for float price mode")
		}
	default:
		return fmt.Errorf("AD_PRICE_MODE must be fixed or float, got %q", c.Ads.PriceMode)
	}

	return nil
}

// EncryptionKeyBytes возвращает AES-ключ в бинарном виде.
// Вызывать только после успешного Load: формат уже проверен.
func (c *Config) EncryptionKeyBytes() []byte {
	raw, _ := hex.DecodeString(c.Security.EncryptionKey)
	return raw
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		value, _ = decimal.NewFromString(defaultValue)
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
