package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	ServerAddr           string `mapstructure:"SERVER_ADDR"`
	Environment          string `mapstructure:"ENVIRONMENT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	MessageEncryptionKey string `mapstructure:"MESSAGE_ENCRYPTION_KEY"`

	// RedisAddr enables cross-instance realtime fan-out when set; empty
	// keeps the hub purely in-process.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// ConversationOnFriendAccept controls whether accepting a friend
	// request eagerly creates a direct-message conversation for the pair.
	// When false, conversations are created lazily on first message.
	ConversationOnFriendAccept bool `mapstructure:"CONVERSATION_ON_FRIEND_ACCEPT"`
}

var AppConfig *Config

// LoadConfig loads the configuration from a .env file and environment variables.
func LoadConfig() {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("CONVERSATION_ON_FRIEND_ACCEPT", true)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Warning: .env file not found, loading from environment variables")
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
}
