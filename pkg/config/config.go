package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL string
}

// KafkaConfig holds broker settings.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret   string
	NonceTTL time.Duration
}

// Load returns a viper instance reading the environment and an optional
// <service>.yaml config file. Environment variables win over the file.
func Load(service string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "")
	v.SetDefault("JWT_NONCE_TTL", "12h")
	return v, nil
}

// GetAppEnv returns the runtime environment name.
func GetAppEnv(v *viper.Viper) string {
	return v.GetString("APP_ENV")
}

// GetServicePort returns the listen address, normalised to ":port".
func GetServicePort(v *viper.Viper, key string) string {
	port := v.GetString(key)
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

// LoadDatabaseConfig reads the database block; dbNameKey selects the database name variable.
func LoadDatabaseConfig(v *viper.Viper, dbNameKey string) DatabaseConfig {
	return DatabaseConfig{
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		User:     v.GetString("DB_USER"),
		Password: v.GetString("DB_PASSWORD"),
		DBName:   v.GetString(dbNameKey),
		SSLMode:  v.GetString("DB_SSLMODE"),
	}
}

// LoadRedisConfig reads the Redis block.
func LoadRedisConfig(v *viper.Viper) RedisConfig {
	return RedisConfig{URL: v.GetString("REDIS_URL")}
}

// LoadKafkaConfig reads the Kafka block. KAFKA_BROKERS is comma separated.
func LoadKafkaConfig(v *viper.Viper) KafkaConfig {
	var brokers []string
	for _, b := range strings.Split(v.GetString("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return KafkaConfig{Brokers: brokers, GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX")}
}

// LoadJWTConfig reads the JWT block.
func LoadJWTConfig(v *viper.Viper) JWTConfig {
	return JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		NonceTTL: v.GetDuration("JWT_NONCE_TTL"),
	}
}
