package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailsync/models"
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment    string        `json:"environment"`
	ServerPort     string        `json:"server_port"`
	LogLevel       string        `json:"log_level"`
	SentryDSN      string        `json:"-"`
	EncryptionKey  string        `json:"-"`
	JWTSecret      string        `json:"-"`
	JWTTTL         time.Duration `json:"jwt_ttl"`
	AllowedOrigins []string      `json:"allowed_origins"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis RedisConfig `json:"redis"`

	IMAPConnectTimeout time.Duration `json:"imap_connect_timeout"`
	IMAPCommandTimeout time.Duration `json:"imap_command_timeout"`
	SMTPSendTimeout    time.Duration `json:"smtp_send_timeout"`

	SyncDefaultLimit int           `json:"sync_default_limit"`
	SyncMaxLimit     int           `json:"sync_max_limit"`
	SyncInterval     time.Duration `json:"sync_interval"`
	SyncLockTTL      time.Duration `json:"sync_lock_ttl"`

	// Requests per minute per account
	RateLimitSync int `json:"rate_limit_sync"`
	RateLimitSend int `json:"rate_limit_send"`
}

// Load reads the configuration from the environment, after loading a .env
// file when one exists.
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	var errs []string
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := getEnvAsDuration(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}

	cfg := &Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "8001"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTTTL:         duration("JWT_TTL", 24*time.Hour),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "mailsync"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		IMAPConnectTimeout: duration("IMAP_CONNECT_TIMEOUT", 10*time.Second),
		IMAPCommandTimeout: duration("IMAP_COMMAND_TIMEOUT", 60*time.Second),
		SMTPSendTimeout:    duration("SMTP_SEND_TIMEOUT", 30*time.Second),

		SyncDefaultLimit: getEnvAsInt("SYNC_DEFAULT_LIMIT", 50),
		SyncMaxLimit:     getEnvAsInt("SYNC_MAX_LIMIT", 500),
		SyncInterval:     duration("SYNC_INTERVAL", 0),
		SyncLockTTL:      duration("SYNC_LOCK_TTL", 5*time.Minute),

		RateLimitSync: getEnvAsInt("RATE_LIMIT_SYNC", 10),
		RateLimitSend: getEnvAsInt("RATE_LIMIT_SEND", 20),
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.EncryptionKey
	}

	// Validate required configurations
	if cfg.DBPassword == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}
	if cfg.EncryptionKey == "" {
		errs = append(errs, "ENCRYPTION_KEY is required")
	}
	if cfg.SyncDefaultLimit > cfg.SyncMaxLimit {
		errs = append(errs, "SYNC_DEFAULT_LIMIT must not exceed SYNC_MAX_LIMIT")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

// LogSummary writes the non-secret settings to log
func (c *Config) LogSummary(log logrus.FieldLogger) {
	log.WithFields(logrus.Fields{
		"environment":   c.Environment,
		"server_port":   c.ServerPort,
		"database":      fmt.Sprintf("%s@%s:%s/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName),
		"redis_enabled": c.Redis.Enabled,
		"sync_interval": c.SyncInterval.String(),
		"sentry":        c.SentryDSN != "",
	}).Info("Loaded configuration")
}

// ConnectDB opens the Postgres pool and migrates the schema
func ConnectDB(cfg *Config, log logrus.FieldLogger) (*gorm.DB, error) {
	dsn := cfg.DSN()
	log.WithField("dsn", maskPassword(dsn)).Info("Attempting to connect to database")

	gormLogger := logger.Default.LogMode(logger.Warn)
	if cfg.Environment == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("Successfully connected to the database")

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migration completed")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MailAccount{},
		&models.Email{},
		&models.EmailAttachment{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback, fmt.Errorf("%s: %v", key, err)
	}
	return value, nil
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}
