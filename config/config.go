package config

import (
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Matchmaking configuration
	AllowedTimeLimits []int

	// Room configuration
	RoomCodeLength    int
	RoomWaitTimeout   time.Duration
	RoomSweepInterval time.Duration

	// Match configuration
	FinishedMatchRetention time.Duration
	RecentProblemWindow    int
	RecentProblemTTL       time.Duration

	// Judge configuration
	JudgeURL     string
	JudgeTimeout time.Duration

	// Websocket configuration
	WSWriteTimeout time.Duration
	WSPongWait     time.Duration

	// Security
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics          bool
	MetricsCollectInterval time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading environment variables directly")
	}

	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "code-duel-server"),

		// Matchmaking
		AllowedTimeLimits: getEnvAsIntSlice("ALLOWED_TIME_LIMITS", []int{5, 10, 15, 30}),

		// Rooms
		RoomCodeLength:    getEnvAsInt("ROOM_CODE_LENGTH", 6),
		RoomWaitTimeout:   getEnvAsDuration("ROOM_WAIT_TIMEOUT", "10m"),
		RoomSweepInterval: getEnvAsDuration("ROOM_SWEEP_INTERVAL", "30s"),

		// Matches
		FinishedMatchRetention: getEnvAsDuration("FINISHED_MATCH_RETENTION", "2m"),
		RecentProblemWindow:    getEnvAsInt("RECENT_PROBLEM_WINDOW", 20),
		RecentProblemTTL:       getEnvAsDuration("RECENT_PROBLEM_TTL", "168h"),

		// Judge
		JudgeURL:     getEnv("JUDGE_URL", "http://localhost:2358"),
		JudgeTimeout: getEnvAsDuration("JUDGE_TIMEOUT", "30s"),

		// Websocket
		WSWriteTimeout: getEnvAsDuration("WS_WRITE_TIMEOUT", "5s"),
		WSPongWait:     getEnvAsDuration("WS_PONG_WAIT", "60s"),

		// Security
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics:          getEnvAsBool("ENABLE_METRICS", true),
		MetricsCollectInterval: getEnvAsDuration("METRICS_COLLECT_INTERVAL", "15s"),
	}
}

// TimeLimitAllowed reports whether minutes is one of the configured buckets.
func (c *Config) TimeLimitAllowed(minutes int) bool {
	return slices.Contains(c.AllowedTimeLimits, minutes)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

// getEnvAsIntSlice parses a comma separated list such as "5,10,15".
// Any malformed entry discards the whole value in favor of the default.
func getEnvAsIntSlice(key string, defaultValue []int) []int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var values []int
	for _, part := range strings.Split(valueStr, ",") {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || value <= 0 {
			return defaultValue
		}
		values = append(values, value)
	}
	return values
}
