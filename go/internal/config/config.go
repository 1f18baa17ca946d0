// Package config loads settings from an optional YAML file, then lets
// environment variables (including a .env file loaded by the binaries)
// override them.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/matchday/go/internal/models"
)

type Config struct {
	Database Database `yaml:"database"`
	NATS     NATS     `yaml:"nats"`
	Relay    Relay    `yaml:"relay"`
	Gateway  Gateway  `yaml:"gateway"`
	Client   Client   `yaml:"client"`
}

// Database holds Postgres connection settings.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL.
func (d Database) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type NATS struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
	// Durable names the gateway's JetStream consumer.
	Durable string `yaml:"durable"`
}

type Relay struct {
	// HealthAddr serves /health and /metrics; empty disables them.
	HealthAddr       string        `yaml:"health_addr"`
	FallbackInterval time.Duration `yaml:"fallback_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	BatchSize        int           `yaml:"batch_size"`
}

type Gateway struct {
	Addr           string   `yaml:"addr"`
	URL            string   `yaml:"url"` // where clients reach the gateway
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Client configures the command-line match day client.
type Client struct {
	UserID              string        `yaml:"user_id"`
	Email               string        `yaml:"email"`
	Timezone            string        `yaml:"timezone"`
	EnforceVotingWindow bool          `yaml:"enforce_voting_window"`
	WeekCheckInterval   time.Duration `yaml:"week_check_interval"`
	// Feed picks the change feed: "nats" or "gateway".
	Feed string `yaml:"feed"`
}

// Viewer returns the identity the client acts as.
func (c Client) Viewer() models.Viewer {
	return models.Viewer{ID: c.UserID, Email: c.Email}
}

// Location resolves Timezone, defaulting to the machine's local zone.
func (c Client) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func Default() Config {
	return Config{
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Name:     "matchday",
			SSLMode:  "disable",
		},
		NATS: NATS{
			URL:           "nats://127.0.0.1:4222",
			Stream:        "MATCHDAY_CHANGES",
			SubjectPrefix: "matchday.changes",
			Durable:       "matchday-gateway",
		},
		Relay: Relay{
			HealthAddr:       ":8082",
			FallbackInterval: 30 * time.Second,
			MaxRetries:       5,
			BatchSize:        100,
		},
		Gateway: Gateway{
			Addr:           ":8081",
			URL:            "http://localhost:8081",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Client: Client{
			WeekCheckInterval: time.Minute,
			Feed:              "nats",
		},
	}
}

// Load reads path (if not empty) over the defaults and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	if err := setInt(&c.Database.Port, "DB_PORT"); err != nil {
		return err
	}

	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.NATS.Stream, "NATS_STREAM")

	setString(&c.Relay.HealthAddr, "RELAY_HEALTH_ADDR")
	if err := setDuration(&c.Relay.FallbackInterval, "FALLBACK_INTERVAL"); err != nil {
		return err
	}

	setString(&c.Gateway.Addr, "GATEWAY_ADDR")
	setString(&c.Gateway.URL, "GATEWAY_URL")
	if v := os.Getenv("GATEWAY_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = splitList(v)
	}

	setString(&c.Client.UserID, "MATCHDAY_USER_ID")
	setString(&c.Client.Email, "MATCHDAY_EMAIL")
	setString(&c.Client.Timezone, "MATCHDAY_TIMEZONE")
	setString(&c.Client.Feed, "MATCHDAY_FEED")
	if v := os.Getenv("MATCHDAY_ENFORCE_VOTING_WINDOW"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MATCHDAY_ENFORCE_VOTING_WINDOW: %w", err)
		}
		c.Client.EnforceVotingWindow = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
