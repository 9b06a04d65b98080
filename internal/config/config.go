/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the psp-fee-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                string  `mapstructure:"DATABASE_URL"`
	RedisURL                   string  `mapstructure:"REDIS_URL"`
	RedisSyncLockPrefix        string  `mapstructure:"REDIS_SYNC_LOCK_PREFIX"`
	RabbitMQURL                string  `mapstructure:"RABBITMQ_URL"`
	FeeEventExchange           string  `mapstructure:"FEE_EVENT_EXCHANGE"`
	FeeSyncQueue               string  `mapstructure:"FEE_SYNC_QUEUE"`
	FeeSyncDueRoutingKey       string  `mapstructure:"FEE_SYNC_DUE_ROUTING_KEY"`
	FeeSyncCompletedRoutingKey string  `mapstructure:"FEE_SYNC_COMPLETED_ROUTING_KEY"`
	MollieAPIBaseURL           string  `mapstructure:"MOLLIE_API_BASE_URL"`
	MollieOAuthClientID        string  `mapstructure:"MOLLIE_OAUTH_CLIENT_ID"`
	MollieOAuthClientSecret    string  `mapstructure:"MOLLIE_OAUTH_CLIENT_SECRET"`
	MollieOAuthRedirectURL     string  `mapstructure:"MOLLIE_OAUTH_REDIRECT_URL"`
	SumUpAPIBaseURL            string  `mapstructure:"SUMUP_API_BASE_URL"`
	InternalAPIKey             string  `mapstructure:"INTERNAL_API_KEY"`
	OAuthStateSecret           string  `mapstructure:"OAUTH_STATE_SECRET"`
	TransactionCacheTTLSeconds int     `mapstructure:"TRANSACTION_CACHE_TTL_SECONDS"`
	HTTPMaxRetries             int     `mapstructure:"HTTP_MAX_RETRIES"`
	HTTPBackoffFactor          float64 `mapstructure:"HTTP_BACKOFF_FACTOR"`
	SyncMaxPayments            int     `mapstructure:"SYNC_MAX_PAYMENTS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_SYNC_LOCK_PREFIX", "psp-fee-service:sync-lock:")
	viper.SetDefault("FEE_EVENT_EXCHANGE", "psp_fee_events")
	viper.SetDefault("FEE_SYNC_QUEUE", "psp_fee_service.sync_requests")
	viper.SetDefault("FEE_SYNC_DUE_ROUTING_KEY", "psp.fee_sync.due")
	viper.SetDefault("FEE_SYNC_COMPLETED_ROUTING_KEY", "psp.fee_sync.completed")
	viper.SetDefault("MOLLIE_API_BASE_URL", "https://api.mollie.com/v2")
	viper.SetDefault("SUMUP_API_BASE_URL", "https://api.sumup.com/v0.1")
	viper.SetDefault("TRANSACTION_CACHE_TTL_SECONDS", 3600)
	viper.SetDefault("HTTP_MAX_RETRIES", 3)
	viper.SetDefault("HTTP_BACKOFF_FACTOR", 2.0)
	viper.SetDefault("SYNC_MAX_PAYMENTS", 500)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PSP_FEE_REDIS_URL")
	_ = viper.BindEnv("REDIS_SYNC_LOCK_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("FEE_EVENT_EXCHANGE")
	_ = viper.BindEnv("FEE_SYNC_QUEUE")
	_ = viper.BindEnv("FEE_SYNC_DUE_ROUTING_KEY")
	_ = viper.BindEnv("FEE_SYNC_COMPLETED_ROUTING_KEY")
	_ = viper.BindEnv("MOLLIE_API_BASE_URL")
	_ = viper.BindEnv("MOLLIE_OAUTH_CLIENT_ID")
	_ = viper.BindEnv("MOLLIE_OAUTH_CLIENT_SECRET")
	_ = viper.BindEnv("MOLLIE_OAUTH_REDIRECT_URL")
	_ = viper.BindEnv("SUMUP_API_BASE_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PSP_FEE_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("OAUTH_STATE_SECRET")
	_ = viper.BindEnv("TRANSACTION_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("HTTP_MAX_RETRIES")
	_ = viper.BindEnv("HTTP_BACKOFF_FACTOR")
	_ = viper.BindEnv("SYNC_MAX_PAYMENTS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PSP_FEE_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisSyncLockPrefix = strings.TrimSpace(config.RedisSyncLockPrefix)
	if config.RedisSyncLockPrefix == "" {
		config.RedisSyncLockPrefix = "psp-fee-service:sync-lock:"
	}

	if config.TransactionCacheTTLSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive cache ttl configured; using default\" ttl_seconds=%d", config.TransactionCacheTTLSeconds)
		config.TransactionCacheTTLSeconds = 3600
	}
	if config.HTTPMaxRetries <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive retry count configured; using default\" max_retries=%d", config.HTTPMaxRetries)
		config.HTTPMaxRetries = 3
	}
	if config.HTTPBackoffFactor < 1 {
		log.Printf("level=warn component=config msg=\"backoff factor below 1 configured; using default\" backoff_factor=%f", config.HTTPBackoffFactor)
		config.HTTPBackoffFactor = 2.0
	}
	if config.SyncMaxPayments <= 0 {
		config.SyncMaxPayments = 500
	}

	return
}
