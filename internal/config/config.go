package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// SchedulerConfig holds scheduling loop settings.
type SchedulerConfig struct {
	PollInterval      time.Duration
	MaxConcurrent     int
	DefaultTimeout    time.Duration
	DefaultMaxRetries int
	RunRetention      time.Duration
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL     string
	Enabled bool
}

// TelegramConfig holds Telegram notification settings.
type TelegramConfig struct {
	Token   string
	ChatID  int64
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Webhook   WebhookConfig
	Telegram  TelegramConfig
	NotifyAll bool
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Scheduler    SchedulerConfig
	Notification NotificationConfig

	StateDir      string
	ShutdownGrace time.Duration

	// EnvFile is the .env file that was loaded, if any. The watcher uses
	// it to reload on change.
	EnvFile string
}

const (
	defaultAddr          = "127.0.0.1:7180"
	defaultLogLevel      = "info"
	defaultPollInterval  = 1 * time.Second
	defaultMaxConcurrent = 4
	defaultTimeout       = 10 * time.Minute
	defaultMaxRetries    = 0
	defaultRunRetention  = 30 * 24 * time.Hour
	defaultShutdownGrace = 10 * time.Second
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// FromEnv builds a Config from the process environment with defaults
// applied. It does not touch command-line flags, so the watcher can call
// it again after reloading the .env file.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      getEnvString("TASKDECK_ADDR", defaultAddr),
			AuthToken: getEnvString("TASKDECK_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level: getEnvString("TASKDECK_LOG_LEVEL", defaultLogLevel),
		},
		Scheduler: SchedulerConfig{
			PollInterval:      getEnvDuration("TASKDECK_POLL_INTERVAL", defaultPollInterval),
			MaxConcurrent:     getEnvInt("TASKDECK_MAX_CONCURRENT", defaultMaxConcurrent),
			DefaultTimeout:    getEnvDuration("TASKDECK_DEFAULT_TIMEOUT", defaultTimeout),
			DefaultMaxRetries: getEnvInt("TASKDECK_DEFAULT_MAX_RETRIES", defaultMaxRetries),
			RunRetention:      getEnvDuration("TASKDECK_RUN_RETENTION", defaultRunRetention),
		},
		Notification: NotificationConfig{
			Webhook: WebhookConfig{
				URL:     getEnvString("TASKDECK_WEBHOOK_URL", ""),
				Enabled: getEnvBool("TASKDECK_WEBHOOK_ENABLED", false),
			},
			Telegram: TelegramConfig{
				Token:   getEnvString("TASKDECK_TELEGRAM_TOKEN", ""),
				ChatID:  getEnvInt64("TASKDECK_TELEGRAM_CHAT_ID", 0),
				Enabled: getEnvBool("TASKDECK_TELEGRAM_ENABLED", false),
			},
			NotifyAll: getEnvBool("TASKDECK_NOTIFY_ALL", false),
		},
		StateDir:      getEnvString("TASKDECK_STATE_DIR", ""),
		ShutdownGrace: getEnvDuration("TASKDECK_SHUTDOWN_GRACE", defaultShutdownGrace),
	}
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	envFile := loadEnvFiles()

	cfg := FromEnv()
	cfg.EnvFile = envFile

	var (
		addr          string
		stateDir      string
		logLevel      string
		pollInterval  time.Duration
		maxConcurrent int
		shutdownGrace time.Duration
	)

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory for the database and state files")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.DurationVar(&pollInterval, "poll-interval", 0, "Scheduler poll interval")
	flag.IntVar(&maxConcurrent, "max-concurrent", 0, "Maximum number of simultaneously running tasks")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if pollInterval > 0 {
		cfg.Scheduler.PollInterval = pollInterval
	}
	if maxConcurrent > 0 {
		cfg.Scheduler.MaxConcurrent = maxConcurrent
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	return cfg.normalized(), nil
}

func (c *Config) normalized() *Config {
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = defaultPollInterval
	}
	if c.Scheduler.MaxConcurrent < 1 {
		c.Scheduler.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Scheduler.DefaultTimeout <= 0 {
		c.Scheduler.DefaultTimeout = defaultTimeout
	}
	if c.Scheduler.DefaultMaxRetries < 0 {
		c.Scheduler.DefaultMaxRetries = defaultMaxRetries
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	return c
}

// loadEnvFiles loads the first .env file found and returns its path,
// or "" when none exists.
func loadEnvFiles() string {
	candidates := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(configDir, "taskdeck", ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Overload(path); err == nil {
			return path
		}
	}
	return ""
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "taskdeck")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
