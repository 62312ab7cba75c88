package config

import (
	"flag"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProxyConfig holds configuration for the crm-proxy stdio bridge.
type ProxyConfig struct {
	ServerURL      string        `yaml:"server_url"`
	InstanceURL    string        `yaml:"instance_url"`
	InstanceAPIKey string        `yaml:"instance_api_key"`
	ConsoleEmail   string        `yaml:"console_email"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *ProxyConfig) BindFlags() {
	c.ServerURL = getEnv("SERVER_URL", "")
	c.InstanceURL = getEnv("INSITES_INSTANCE_URL", "")
	c.InstanceAPIKey = getEnv("INSITES_INSTANCE_API_KEY", "")
	c.ConsoleEmail = getEnv("CONSOLE_EMAIL", "")
	c.RequestTimeout = envDuration("REQUEST_TIMEOUT", 60*time.Second)
	c.MetricsAddr = getEnv("METRICS_ADDR", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.ConfigFile = getEnv("CONFIG_FILE", "")

	flag.StringVar(&c.ServerURL, "server-url", c.ServerURL, "base URL of the CRM execution service")
	flag.StringVar(&c.InstanceURL, "instance-url", c.InstanceURL, "CRM instance URL")
	flag.StringVar(&c.InstanceAPIKey, "instance-api-key", c.InstanceAPIKey, "CRM instance API key")
	flag.StringVar(&c.ConsoleEmail, "console-email", c.ConsoleEmail, "console account email for instance lifecycle tools")
	flag.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "timeout for execution service calls")
	flag.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus metrics listen address (disabled when empty)")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "proxy config file path")
}

// LoadFile overlays the config from a YAML file.
func (c *ProxyConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
