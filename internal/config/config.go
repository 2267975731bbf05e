package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	SessionTTL            time.Duration
	OpenSessionFetchLimit int
	HistoryLimit          int

	LocationPollInterval time.Duration
	DashboardRefresh     time.Duration
	DeviceLat            float64
	DeviceLng            float64
	DeviceConfigured     bool

	RateLimitPerMinute       int
	RateLimitBurst           int
	WorkerRateLimitPerMinute int
	WorkerRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	lat, latSet := readFloat("DEVICE_LAT")
	lng, lngSet := readFloat("DEVICE_LNG")

	return Config{
		Port:                     port,
		DatabaseURL:              os.Getenv("DB_DSN"),
		SessionTTL:               readDurationSeconds("SESSION_TTL_SECONDS", 43200),
		OpenSessionFetchLimit:    readInt("OPEN_SESSION_FETCH_LIMIT", 10),
		HistoryLimit:             readInt("HISTORY_LIMIT", 20),
		LocationPollInterval:     readDurationSeconds("LOCATION_POLL_SECONDS", 30),
		DashboardRefresh:         readDurationSeconds("DASHBOARD_REFRESH_SECONDS", 300),
		DeviceLat:                lat,
		DeviceLng:                lng,
		DeviceConfigured:         latSet && lngSet,
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		WorkerRateLimitPerMinute: readInt("WORKER_RATE_LIMIT_PER_MIN", 60),
		WorkerRateLimitBurst:     readInt("WORKER_RATE_LIMIT_BURST", 20),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
