package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by WARRANT_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("WARRANT_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// APIKey returns the static bearer key required on /v1 routes.
// Empty means auth is disabled.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// WorldProvider returns the configured world backend.
// Defaults to "sim" if not set.
// Valid values: sim, mock
func WorldProvider() string {
	p := os.Getenv("WORLD_PROVIDER")
	if p == "" {
		return "sim"
	}
	return p
}

// WorldWorkers returns the worker count for plate execution.
// Defaults to 4 if not set.
func WorldWorkers() int {
	n, err := strconv.Atoi(os.Getenv("WORLD_WORKERS"))
	if err != nil || n <= 0 {
		return 4
	}
	return n
}

// CalibrationProfilePath returns the YAML calibration profile path.
// Empty means the built-in static profile is used.
func CalibrationProfilePath() string {
	return os.Getenv("CALIBRATION_PROFILE")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
