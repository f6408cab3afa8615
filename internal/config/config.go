package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/dealscope/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Bitrix（リモートCRM）
	BitrixWebhookBase string

	// Sync
	SyncTimeout  time.Duration
	SyncMaxSize  int64
	SyncInterval time.Duration
	SyncPolicy   model.SyncPolicy

	// Cache
	CacheTTL      time.Duration
	RedisAddr     string // 空の場合はインメモリキャッシュを使用
	RedisPassword string
	RedisDB       int

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitSync    int

	// Telegram通知（トークン未設定の場合は無効）
	TelegramBotToken string
	TelegramChatID   int64

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（ローカル開発用）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envが存在しない場合のエラーは無視する
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BitrixWebhookBase = os.Getenv("BITRIX_WEBHOOK_BASE")
	if cfg.BitrixWebhookBase == "" {
		missing = append(missing, "BITRIX_WEBHOOK_BASE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SyncTimeout = getEnvDuration("SYNC_TIMEOUT", 10*time.Second)
	cfg.SyncMaxSize = getEnvInt64("SYNC_MAX_SIZE", 5242880)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 15*time.Minute)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 10)
	cfg.TelegramBotToken = getEnvString("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnvInt64("TELEGRAM_CHAT_ID", 0)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	policy := model.SyncPolicy(getEnvString("SYNC_POLICY", string(model.SyncPolicyFailFast)))
	if !policy.IsValid() {
		return nil, fmt.Errorf("invalid SYNC_POLICY: %q (allowed: failfast, besteffort)", policy)
	}
	cfg.SyncPolicy = policy

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
