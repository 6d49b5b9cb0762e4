package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AlertPolicy controls how often a sustained negative streak raises alerts
type AlertPolicy string

const (
	// AlertPolicySingle fires once when the streak first reaches the threshold
	AlertPolicySingle AlertPolicy = "single"
	// AlertPolicyRepeat fires on every negative utterance at or past the threshold
	AlertPolicyRepeat AlertPolicy = "repeat"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	LogLevel       string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// External services
	DatabaseURL       string
	AMQPURL           string
	TranscriptQueue   string
	SummaryQueue      string
	STTVendor         string
	STTLanguage       string
	STTSampleRate     int
	GoogleCredentials string

	// Alerting and scoring
	NegativeStreakThreshold int
	AlertPolicy             AlertPolicy
	QAThreshold             float64

	// Lifecycle timers
	ReaperInterval      time.Duration
	InactivityThreshold time.Duration
	PurgeGrace          time.Duration
	DirectoryRefresh    time.Duration
	SnapshotWorkers     int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		TranscriptQueue:   getEnv("AMQP_TRANSCRIPT_QUEUE", "call_transcripts"),
		SummaryQueue:      getEnv("AMQP_SUMMARY_QUEUE", "call_summaries"),
		STTVendor:         getEnv("STT_VENDOR", "none"),
		STTLanguage:       getEnv("STT_LANGUAGE", "en-US"),
		GoogleCredentials: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		AlertPolicy:       AlertPolicy(strings.ToLower(getEnv("ALERT_POLICY", string(AlertPolicySingle)))),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 64 * 1024 // audio frames

	config.STTSampleRate, err = strconv.Atoi(getEnv("STT_SAMPLE_RATE", "16000"))
	if err != nil {
		return nil, fmt.Errorf("invalid STT_SAMPLE_RATE: %w", err)
	}

	config.NegativeStreakThreshold, err = strconv.Atoi(getEnv("NEGATIVE_STREAK_THRESHOLD", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid NEGATIVE_STREAK_THRESHOLD: %w", err)
	}
	if config.NegativeStreakThreshold < 1 {
		return nil, fmt.Errorf("invalid NEGATIVE_STREAK_THRESHOLD: must be at least 1")
	}

	if config.AlertPolicy != AlertPolicySingle && config.AlertPolicy != AlertPolicyRepeat {
		return nil, fmt.Errorf("invalid ALERT_POLICY: %q", config.AlertPolicy)
	}

	config.QAThreshold, err = strconv.ParseFloat(getEnv("QA_THRESHOLD", "80"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid QA_THRESHOLD: %w", err)
	}

	workers, err := strconv.Atoi(getEnv("SNAPSHOT_WORKERS", "16"))
	if err != nil {
		return nil, fmt.Errorf("invalid SNAPSHOT_WORKERS: %w", err)
	}
	config.SnapshotWorkers = int64(workers)

	// Lifecycle timers, in seconds
	timers := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"REAPER_INTERVAL", "60", &config.ReaperInterval},
		{"INACTIVITY_THRESHOLD", "300", &config.InactivityThreshold},
		{"CALL_PURGE_GRACE", "5", &config.PurgeGrace},
		{"DIRECTORY_REFRESH", "300", &config.DirectoryRefresh},
	}
	for _, t := range timers {
		secs, err := strconv.Atoi(getEnv(t.key, t.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", t.key, err)
		}
		*t.dest = time.Duration(secs) * time.Second
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
