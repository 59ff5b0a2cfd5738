package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the server reads
const EnvPrefix = "QUIZROOM_"

// Config is the complete server configuration
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Chat      *ChatConfig      `json:"chat"`
	Integrity *IntegrityConfig `json:"integrity"`
	Scheduler *SchedulerConfig `json:"scheduler"`
	Security  *SecurityConfig  `json:"security"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig also carries BaseURL, the public origin used for the socket
// origin check and CORS; empty or "*" allows any origin
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BaseURL      string        `json:"base_url"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

type ChatConfig struct {
	MaxMessageLength   int `json:"max_message_length"`
	HistoryLimit       int `json:"history_limit"`
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
}

type IntegrityConfig struct {
	ExcessiveMessageThreshold int `json:"excessive_message_threshold"`
}

type SchedulerConfig struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
}

// SecurityConfig holds the shared secret that identifies system (cron) callers
type SecurityConfig struct {
	CronSecret string `json:"-"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./quizroom.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   100,
		},
		Chat: &ChatConfig{
			MaxMessageLength:   2000,
			HistoryLimit:       50,
			RateLimitPerMinute: 60,
		},
		Integrity: &IntegrityConfig{
			ExcessiveMessageThreshold: 20,
		},
		Scheduler: &SchedulerConfig{
			Enabled:  true,
			Interval: 5 * time.Minute,
		},
		Security: &SecurityConfig{},
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("chat max message length must be positive")
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history limit must be positive")
	}
	if c.Chat.RateLimitPerMinute <= 0 {
		return fmt.Errorf("chat rate limit must be positive")
	}

	if c.Integrity == nil {
		return fmt.Errorf("integrity configuration is required")
	}
	if c.Integrity.ExcessiveMessageThreshold <= 0 {
		return fmt.Errorf("excessive message threshold must be positive")
	}

	if c.Scheduler == nil {
		return fmt.Errorf("scheduler configuration is required")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}

	if c.Security == nil {
		return fmt.Errorf("security configuration is required")
	}
	return nil
}

// Address returns host:port for the HTTP listener
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadDotEnv loads variables from .env files without overriding ones already
// set. With no arguments it reads ./.env. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFromEnv returns the defaults overridden by QUIZROOM_* variables.
// Unparseable values are ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envString("DATABASE_PATH", &config.Database.Path)
	envDuration("DATABASE_TIMEOUT", &config.Database.Timeout)

	envString("HTTP_HOST", &config.HTTP.Host)
	envInt("HTTP_PORT", &config.HTTP.Port)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envString("BASE_URL", &config.HTTP.BaseURL)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	envInt("CHAT_MAX_MESSAGE_LENGTH", &config.Chat.MaxMessageLength)
	envInt("CHAT_HISTORY_LIMIT", &config.Chat.HistoryLimit)
	envInt("CHAT_RATE_LIMIT", &config.Chat.RateLimitPerMinute)

	envInt("INTEGRITY_EXCESSIVE_THRESHOLD", &config.Integrity.ExcessiveMessageThreshold)

	envBool("SCHEDULER_ENABLED", &config.Scheduler.Enabled)
	envDuration("SCHEDULER_INTERVAL", &config.Scheduler.Interval)

	envString("CRON_SECRET", &config.Security.CronSecret)
}

func envString(name string, target *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*target = v
	}
}

func envInt(name string, target *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envDuration(name string, target *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

func envBool(name string, target *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*target = b
		}
	}
}

// ConfigFile is the JSON layout of a config file; durations are strings
// such as "30s"
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Chat      *ChatConfig          `json:"chat"`
	Integrity *IntegrityConfig     `json:"integrity"`
	Scheduler *SchedulerConfigFile `json:"scheduler"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BaseURL      string `json:"base_url"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type SchedulerConfigFile struct {
	Enabled  *bool  `json:"enabled"`
	Interval string `json:"interval"`
}

// LoadFromFile returns the defaults overridden by a JSON config file
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if d := file.Database; d != nil {
		setString(&config.Database.Path, d.Path)
		if err := setDuration(&config.Database.Timeout, d.Timeout, "database.timeout"); err != nil {
			return err
		}
	}

	if h := file.HTTP; h != nil {
		setString(&config.HTTP.Host, h.Host)
		setInt(&config.HTTP.Port, h.Port)
		setString(&config.HTTP.BaseURL, h.BaseURL)
		if err := setDuration(&config.HTTP.ReadTimeout, h.ReadTimeout, "http.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&config.HTTP.WriteTimeout, h.WriteTimeout, "http.write_timeout"); err != nil {
			return err
		}
	}

	if w := file.WebSocket; w != nil {
		setInt(&config.WebSocket.BufferSize, w.BufferSize)
		if err := setDuration(&config.WebSocket.PingInterval, w.PingInterval, "websocket.ping_interval"); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.ReadTimeout, w.ReadTimeout, "websocket.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.WriteTimeout, w.WriteTimeout, "websocket.write_timeout"); err != nil {
			return err
		}
	}

	if c := file.Chat; c != nil {
		setInt(&config.Chat.MaxMessageLength, c.MaxMessageLength)
		setInt(&config.Chat.HistoryLimit, c.HistoryLimit)
		setInt(&config.Chat.RateLimitPerMinute, c.RateLimitPerMinute)
	}

	if i := file.Integrity; i != nil {
		setInt(&config.Integrity.ExcessiveMessageThreshold, i.ExcessiveMessageThreshold)
	}

	if s := file.Scheduler; s != nil {
		if s.Enabled != nil {
			config.Scheduler.Enabled = *s.Enabled
		}
		if err := setDuration(&config.Scheduler.Interval, s.Interval, "scheduler.interval"); err != nil {
			return err
		}
	}
	return nil
}

func setString(target *string, v string) {
	if v != "" {
		*target = v
	}
}

func setInt(target *int, v int) {
	if v > 0 {
		*target = v
	}
}

func setDuration(target *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", field, err)
	}
	*target = d
	return nil
}

// LoadConfigWithPrecedence builds the configuration from defaults, then
// .env and the environment, then the config file when one is given. A file
// that cannot be read or parsed is logged and skipped.
func LoadConfigWithPrecedence(filepath string) *Config {
	if err := LoadDotEnv(); err != nil {
		log.Printf("Ignoring .env: %v", err)
	}

	config := LoadFromEnv()
	if filepath == "" {
		return config
	}

	// A failed file leaves the env config untouched
	candidate := config.clone()
	if err := applyFile(candidate, filepath); err != nil {
		log.Printf("Ignoring config file: %v", err)
		return config
	}
	return candidate
}

func (c *Config) clone() *Config {
	database := *c.Database
	http := *c.HTTP
	ws := *c.WebSocket
	chat := *c.Chat
	integrity := *c.Integrity
	scheduler := *c.Scheduler
	security := *c.Security
	return &Config{
		Database:  &database,
		HTTP:      &http,
		WebSocket: &ws,
		Chat:      &chat,
		Integrity: &integrity,
		Scheduler: &scheduler,
		Security:  &security,
	}
}
