package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	Port               string
	JWTSecret          string
	StoreBackend       string
	MongoURI           string
	MongoDB            string
	RedisAddr          string
	RedisDB            int
	NatsURL            string
	NatsToken          string
	AllowedOrigins     []string
	RateLimit          int
	SessionIdleTimeout time.Duration
	LogLevel           string
	LogFile            string
}

// LoadEnv reads .env if present. A missing file is not an error; the
// process environment is used as is.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using process environment")
		return
	}
	log.Info(".env file loaded.")
}

// Load builds the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		Port:           getenv("PORT", "8080"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		StoreBackend:   getenv("STORE_BACKEND", BackendMongo),
		MongoURI:       getenv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:        getenv("MONGODB_DB", "cardex"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		NatsURL:        os.Getenv("NATS_URL"),
		NatsToken:      os.Getenv("NATS_TOKEN"),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	if cfg.StoreBackend != BackendMongo && cfg.StoreBackend != BackendMemory {
		return cfg, fmt.Errorf("invalid STORE_BACKEND %q, want %q or %q", cfg.StoreBackend, BackendMongo, BackendMemory)
	}

	var err error
	if cfg.RedisDB, err = getint("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = getint("RATE_LIMIT", 120); err != nil {
		return cfg, err
	}
	idle := getenv("SESSION_IDLE_TIMEOUT", "30m")
	if cfg.SessionIdleTimeout, err = time.ParseDuration(idle); err != nil {
		return cfg, fmt.Errorf("invalid SESSION_IDLE_TIMEOUT value: %v", err)
	}
	return cfg, nil
}

// Logging configures the global logrus logger. Output goes to LogFile when
// set, otherwise stderr.
func (c Config) Logging(service string) error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL value: %v", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if c.LogFile != "" {
		file, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %v", err)
		}
		log.SetOutput(file)
	}
	log.Infof("logging started for service: %s", service)
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// RequestTimeout bounds a single HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return 30 * time.Second
}

func (c Config) HTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         c.Addr(),
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %v", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
