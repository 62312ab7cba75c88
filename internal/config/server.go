package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the crmd gateway.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	BackendURL     string        `yaml:"backend_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	RedisAddr      string        `yaml:"redis_addr"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *ServerConfig) BindFlags() {
	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	c.Port = port
	c.BackendURL = getEnv("BACKEND_URL", "http://127.0.0.1:9090")
	c.RequestTimeout = envDuration("REQUEST_TIMEOUT", 120*time.Second)
	c.PingInterval = envDuration("PING_INTERVAL", 30*time.Second)
	c.RedisAddr = getEnv("REDIS_ADDR", "")
	c.CacheTTL = envDuration("CACHE_TTL", time.Hour)
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.ConfigFile = getEnv("CONFIG_FILE", "")

	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	flag.StringVar(&c.BackendURL, "backend-url", c.BackendURL, "base URL of the CRM execution service")
	flag.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "maximum duration of one agent turn")
	flag.DurationVar(&c.PingInterval, "ping-interval", c.PingInterval, "idle interval before an SSE keep-alive frame")
	flag.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for the response cache; empty disables caching")
	flag.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "response cache entry lifetime")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
}

// LoadFile overlays the config from a YAML file. Entries present in the file
// overwrite the current values.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func envDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain numbers are read as seconds.
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}
