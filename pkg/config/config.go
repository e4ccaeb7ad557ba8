// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/go-core-stack/library-client/pkg/auth"
	"github.com/go-core-stack/library-client/pkg/session"
)

const (
	envAPIURL                 = "LIBRARY_API_URL"
	envAppID                  = "LIBRARY_APP_ID"
	envSessionBackend         = "LIBRARY_SESSION_BACKEND"
	envSessionFile            = "LIBRARY_SESSION_FILE"
	envSessionTTL             = "LIBRARY_SESSION_TTL"
	envRedisURL               = "LIBRARY_REDIS_URL"
	envRedisPrefix            = "LIBRARY_REDIS_PREFIX"
	envRequestTimeout         = "LIBRARY_REQUEST_TIMEOUT"
	envRateLimit              = "LIBRARY_RATE_LIMIT"
	envInsecureSkipVerify     = "LIBRARY_UPSTREAM_INSECURE"
	envListenAddr             = "LIBRARY_LISTEN_ADDR"
	envMetrics                = "LIBRARY_METRICS"
	envLogLevel               = "LIBRARY_LOG_LEVEL"
	envLogFile                = "LIBRARY_LOG_FILE"
	envServerReadTimeout      = "LIBRARY_SERVER_READ_TIMEOUT"
	envServerWriteTimeout     = "LIBRARY_SERVER_WRITE_TIMEOUT"
	envServerIdleTimeout      = "LIBRARY_SERVER_IDLE_TIMEOUT"
	envGracefulShutdown       = "LIBRARY_GRACEFUL_SHUTDOWN"
	defaultEnvFile            = ".env"
	defaultListenAddr         = "127.0.0.1:8080"
	defaultRequestTimeout     = 15 * time.Second
	defaultSessionBackend     = session.BackendFile
	defaultRedisPrefix        = "library:"
	defaultLogLevel           = "info"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 30 * time.Second
	defaultServerIdleTimeout  = 120 * time.Second
	defaultGracefulShutdown   = 10 * time.Second
)

// Config captures runtime settings for the library client.
type Config struct {
	APIURL             *url.URL
	AppID              string
	Session            session.Options
	RequestTimeout     time.Duration
	RateLimit          float64
	RateBurst          int
	InsecureSkipVerify bool
	LogLevel           string
	LogFile            string

	// Local gateway settings used by `libctl serve`.
	ListenAddr              string
	Metrics                 bool
	ServerReadTimeout       time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
}

// Load reads configuration from a .env file (when present) and environment
// variables, and validates required values. Variables already set in the
// environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", defaultEnvFile, err)
	}

	apiRaw := strings.TrimSpace(os.Getenv(envAPIURL))
	if apiRaw == "" {
		return Config{}, errors.New("LIBRARY_API_URL is required")
	}

	apiURL, err := url.Parse(apiRaw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LIBRARY_API_URL: %w", err)
	}
	if !apiURL.IsAbs() {
		return Config{}, errors.New("LIBRARY_API_URL must be absolute (scheme://host)")
	}

	rateLimit, rateBurst, err := parseRateLimit(strings.TrimSpace(os.Getenv(envRateLimit)))
	if err != nil {
		return Config{}, err
	}

	backend := strings.ToLower(getString(envSessionBackend, defaultSessionBackend))
	redisURL := strings.TrimSpace(os.Getenv(envRedisURL))
	if backend == session.BackendRedis && redisURL == "" {
		return Config{}, errors.New("LIBRARY_REDIS_URL is required for the redis session backend")
	}

	cfg := Config{
		APIURL: apiURL,
		AppID:  getString(envAppID, auth.DefaultAppID),
		Session: session.Options{
			Backend:     backend,
			FilePath:    strings.TrimSpace(os.Getenv(envSessionFile)),
			RedisURL:    redisURL,
			RedisPrefix: getString(envRedisPrefix, defaultRedisPrefix),
			TTL:         getDuration(envSessionTTL, 0),
		},
		RequestTimeout:          getDuration(envRequestTimeout, defaultRequestTimeout),
		RateLimit:               rateLimit,
		RateBurst:               rateBurst,
		InsecureSkipVerify:      getBool(envInsecureSkipVerify, false),
		LogLevel:                strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		LogFile:                 strings.TrimSpace(os.Getenv(envLogFile)),
		ListenAddr:              getString(envListenAddr, defaultListenAddr),
		Metrics:                 getBool(envMetrics, false),
		ServerReadTimeout:       getDuration(envServerReadTimeout, defaultServerReadTimeout),
		ServerWriteTimeout:      getDuration(envServerWriteTimeout, defaultServerWriteTimeout),
		ServerIdleTimeout:       getDuration(envServerIdleTimeout, defaultServerIdleTimeout),
		GracefulShutdownTimeout: getDuration(envGracefulShutdown, defaultGracefulShutdown),
	}

	return cfg, nil
}

// parseRateLimit accepts "rate" or "rate:burst". An empty value disables
// limiting.
func parseRateLimit(val string) (float64, int, error) {
	if val == "" {
		return 0, 0, nil
	}

	var rate float64
	var burst int
	if _, err := fmt.Sscanf(val, "%f:%d", &rate, &burst); err != nil {
		rate, err = strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%s was provided but incorrectly formatted", envRateLimit)
		}
		burst = int(rate)
	}
	if rate < 0 || burst < 0 {
		return 0, 0, fmt.Errorf("%s must not be negative", envRateLimit)
	}
	if burst == 0 && rate > 0 {
		burst = 1
	}
	return rate, burst, nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
