package utils

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

var (
	EnvPath string = "."
)

type Config struct {
	Env        string `mapstructure:"ENV"`
	ServerPort int    `mapstructure:"SERVER_PORT"`
	SigningKey string `mapstructure:"SIGNING_KEY"`

	DBUsername string `mapstructure:"DB_USERNAME"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBName     string `mapstructure:"DB_NAME"`
	SSLMode    string `mapstructure:"SSLMODE"`

	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// VNPay-compatible gateway settings
	GatewayBaseURL      string `mapstructure:"GATEWAY_BASE_URL"`
	GatewayMerchantCode string `mapstructure:"GATEWAY_MERCHANT_CODE"`
	GatewaySecretKey    string `mapstructure:"GATEWAY_SECRET_KEY"`
	GatewayReturnURL    string `mapstructure:"GATEWAY_RETURN_URL"`
	GatewayExpiryMins   int    `mapstructure:"GATEWAY_EXPIRY_MINUTES"`

	OTPLength     int `mapstructure:"OTP_LENGTH"`
	OTPExpiryMins int `mapstructure:"OTP_EXPIRY_MINUTES"`

	// Receiver's share of a gift amount, e.g. "0.8". The remainder
	// stays with the platform.
	GiftReceiverShare string `mapstructure:"GIFT_RECEIVER_SHARE"`

	PlunkBaseUrl       string `mapstructure:"PLUNK_BASE_URL"`
	PlunkApiKey        string `mapstructure:"PLUNK_API_KEY"`
	NotificationSource string `mapstructure:"NOTIFICATION_SOURCE_MAIL"`

	TwilioAccountSid string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioKeySid     string `mapstructure:"TWILIO_KEY_SID"`
	TwilioKeySecret  string `mapstructure:"TWILIO_KEY_SECRET"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`

	Papertrail        string `mapstructure:"PAPERTRAIL"`
	PapertrailAppName string `mapstructure:"PAPERTRAIL_APP_NAME"`
}

func LoadConfig(path string) (*Config, error) {
	// Validate that the path is not empty
	if path == "" {
		path = "."
	}

	// Create a new Viper instance to avoid global state
	v := viper.New()

	// Disable environment variable prefix
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	// Configure config file
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Log the error, but don't fail entirely
		log.Printf("Warning: Unable to read config file: %v", err)
	}

	// Create config struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	applyDefaults(&config)

	// Additional security: Validate critical configurations
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.OTPLength == 0 {
		config.OTPLength = 6
	}
	if config.OTPExpiryMins == 0 {
		config.OTPExpiryMins = 5
	}
	if config.GatewayExpiryMins == 0 {
		config.GatewayExpiryMins = 30
	}
	if config.GiftReceiverShare == "" {
		config.GiftReceiverShare = "0.8"
	}
}

func validateConfig(config *Config) error {
	// Add validation for critical configurations
	if config.ServerPort == 0 {
		return fmt.Errorf("server port must be specified")
	}

	if config.DBUsername == "" || config.DBPassword == "" {
		return fmt.Errorf("database credentials must be provided")
	}

	// Without the gateway secret every inbound callback would fail
	// validation, so refuse to start with a half-configured gateway
	if config.GatewayMerchantCode != "" && config.GatewaySecretKey == "" {
		return fmt.Errorf("gateway merchant code set but no gateway secret key")
	}

	return nil
}

func (c *Config) OTPExpiry() time.Duration {
	return time.Duration(c.OTPExpiryMins) * time.Minute
}

func (c *Config) GatewayExpiry() time.Duration {
	return time.Duration(c.GatewayExpiryMins) * time.Minute
}

// Optional: Masking sensitive information for logging
func (c *Config) Redact() Config {
	redacted := *c
	redacted.SigningKey = "****"
	redacted.DBPassword = "****"
	redacted.RedisPassword = "****"
	redacted.GatewaySecretKey = "****"
	redacted.PlunkApiKey = "****"
	redacted.TwilioKeySecret = "****"
	return redacted
}
