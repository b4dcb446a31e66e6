package config

import (
	"os"
	"strconv"
)

type R2 struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	BucketName    string
	PublicBaseURL string
}

type Platform struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

type Config struct {
	PostgresURI        string
	RedisURI           string
	FrontendURL        string
	Platform           Platform
	R2                 R2
	SecretKey          string
	EncryptionKey      string
	EncryptionKeyID    string
	CookieName         string
	SchedulerBatchSize int
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		Platform: Platform{
			BaseURL:      getEnv("PLATFORM_BASE_URL", ""),
			ClientID:     getEnv("PLATFORM_CLIENT_ID", ""),
			ClientSecret: getEnv("PLATFORM_CLIENT_SECRET", ""),
			TokenURL:     getEnv("PLATFORM_TOKEN_URL", ""),
		},
		R2: R2{
			AccountID:     getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:     getEnv("R2_ACCESS_KEY", ""),
			SecretKey:     getEnv("R2_SECRET_KEY", ""),
			BucketName:    getEnv("R2_BUCKET_NAME", ""),
			PublicBaseURL: getEnv("R2_PUBLIC_BASE_URL", ""),
		},
		SecretKey:          getEnv("SECRET_KEY", ""),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		EncryptionKeyID:    getEnv("ENCRYPTION_KEY_ID", "k1"),
		CookieName:         getEnv("COOKIE_NAME", ""),
		SchedulerBatchSize: getEnvInt("SCHEDULER_BATCH_SIZE", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
