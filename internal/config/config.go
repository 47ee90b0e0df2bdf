package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/vielimo/service-booking/pkg/config"
)

// SheetsConfig holds the coupon spreadsheet settings.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	Range           string
	Timeout         time.Duration
	UseMock         bool
}

// CouponConfig holds coupon cache, lock and rate limit settings.
type CouponConfig struct {
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	LockTTL         time.Duration
	RateLimit       int
	RateWindow      time.Duration
}

// SMTPConfig holds outgoing mail settings. An empty host selects the logging sender.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// BankConfig is printed in payment instructions.
type BankConfig struct {
	BankName      string
	AccountNumber string
	AccountName   string
}

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port          string
	AppEnv        string
	DBConfig      config.DatabaseConfig
	RedisConfig   config.RedisConfig
	JWTConfig     config.JWTConfig
	KafkaConfig   config.KafkaConfig
	NonceSecret   string
	Sheets        SheetsConfig
	Coupons       CouponConfig
	SePayAPIKey   string
	SMTP          SMTPConfig
	Bank          BankConfig
	AdminEmail    string
	PublicRPS     float64
	PublicBurst   int
	MigrationsDir string
}

// Load reads configuration from environment variables and returns a ServiceConfig.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("booking")
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	cfg := &ServiceConfig{
		Port:        config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:      config.GetAppEnv(v),
		DBConfig:    config.LoadDatabaseConfig(v, "DB_NAME"),
		RedisConfig: config.LoadRedisConfig(v),
		JWTConfig:   config.LoadJWTConfig(v),
		KafkaConfig: config.LoadKafkaConfig(v),
		NonceSecret: v.GetString("NONCE_SECRET"),
		Sheets: SheetsConfig{
			CredentialsPath: v.GetString("SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   v.GetString("SHEETS_SPREADSHEET_ID"),
			Range:           v.GetString("SHEETS_RANGE"),
			Timeout:         v.GetDuration("SHEETS_TIMEOUT"),
			UseMock:         v.GetBool("SHEETS_USE_MOCK"),
		},
		Coupons: CouponConfig{
			CacheTTL:        v.GetDuration("COUPON_CACHE_TTL"),
			RefreshInterval: v.GetDuration("COUPON_REFRESH_INTERVAL"),
			LockTTL:         v.GetDuration("COUPON_LOCK_TTL"),
			RateLimit:       v.GetInt("COUPON_RATE_LIMIT"),
			RateWindow:      v.GetDuration("COUPON_RATE_WINDOW"),
		},
		SePayAPIKey: v.GetString("SEPAY_API_KEY"),
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetString("SMTP_PORT"),
			Username: v.GetString("SMTP_USER"),
			Password: v.GetString("SMTP_PASS"),
			From:     v.GetString("SMTP_FROM"),
		},
		Bank: BankConfig{
			BankName:      v.GetString("BANK_NAME"),
			AccountNumber: v.GetString("BANK_ACCOUNT_NUMBER"),
			AccountName:   v.GetString("BANK_ACCOUNT_NAME"),
		},
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		PublicRPS:     v.GetFloat64("PUBLIC_RATE_RPS"),
		PublicBurst:   v.GetInt("PUBLIC_RATE_BURST"),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
	}

	if cfg.JWTConfig.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.NonceSecret == "" {
		return nil, fmt.Errorf("NONCE_SECRET is required")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_PORT", "8080")
	v.SetDefault("DB_NAME", "booking")
	v.SetDefault("SHEETS_RANGE", "Coupons!A2:F1000")
	v.SetDefault("SHEETS_TIMEOUT", "15s")
	v.SetDefault("COUPON_CACHE_TTL", "10m")
	v.SetDefault("COUPON_REFRESH_INTERVAL", "5m")
	v.SetDefault("COUPON_LOCK_TTL", "30s")
	v.SetDefault("COUPON_RATE_LIMIT", 10)
	v.SetDefault("COUPON_RATE_WINDOW", "1m")
	v.SetDefault("PUBLIC_RATE_RPS", 5)
	v.SetDefault("PUBLIC_RATE_BURST", 20)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
}
