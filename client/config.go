package client

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/vinayprograms/taskwatch/errors"
)

// Default client parameters.
const (
	// DefaultPollInterval is the delay between status polls.
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxWait bounds WaitForCompletion when the caller supplies
	// no deadline of its own.
	DefaultMaxWait = 300 * time.Second

	// apiKeyEnvVar names the credential environment variable.
	apiKeyEnvVar = "MANUS_API_KEY"
)

// Config holds client configuration, loadable from taskwatch.toml with
// environment variables filling gaps.
type Config struct {
	// APIKey authenticates against the task service.
	APIKey string `toml:"api_key"`

	// BaseURL overrides the service endpoint. Empty means production.
	BaseURL string `toml:"base_url"`

	// AgentProfile selects the agent configuration for new tasks.
	AgentProfile string `toml:"agent_profile"`

	// TaskMode tunes the agent's effort level (e.g. "speed", "quality").
	TaskMode string `toml:"task_mode"`

	// PollInterval is the delay between status polls.
	PollInterval time.Duration `toml:"-"`

	// MaxWait bounds WaitForCompletion.
	MaxWait time.Duration `toml:"-"`

	// WebhookAddr is the listen address for the webhook receiver.
	// Empty disables the receiver; deliveries can still be fed in
	// through HandleWebhookDelivery.
	WebhookAddr string `toml:"webhook_addr"`

	// WebhookURL is the externally reachable delivery URL registered
	// with the service.
	WebhookURL string `toml:"webhook_url"`

	// NATSURL enables resolution fan-out over NATS when set.
	NATSURL string `toml:"nats_url"`

	// Raw duration strings from TOML; parsed into the fields above.
	PollIntervalStr string `toml:"poll_interval"`
	MaxWaitStr      string `toml:"max_wait"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		MaxWait:      DefaultMaxWait,
	}
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"taskwatch.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskwatch", "taskwatch.toml"))
	}
	return paths
}

// LoadConfig loads configuration from the first available standard
// location, then overlays environment variables. A .env file in the
// working directory is honored. Missing files are not an error; the
// environment alone can carry the whole configuration.
func LoadConfig() (Config, error) {
	godotenv.Load()

	cfg := DefaultConfig()
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadConfigFile(path)
			if err != nil {
				return cfg, err
			}
			cfg = loaded
			break
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadConfigFile loads configuration from a specific TOML file.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.InvalidInput("parsing "+path, errors.WithCause(err))
	}
	if err := cfg.parseDurations(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseDurations converts TOML duration strings into their fields.
func (c *Config) parseDurations() error {
	if c.PollIntervalStr != "" {
		d, err := time.ParseDuration(c.PollIntervalStr)
		if err != nil {
			return errors.InvalidInput("invalid poll_interval", errors.WithCause(err))
		}
		c.PollInterval = d
	}
	if c.MaxWaitStr != "" {
		d, err := time.ParseDuration(c.MaxWaitStr)
		if err != nil {
			return errors.InvalidInput("invalid max_wait", errors.WithCause(err))
		}
		c.MaxWait = d
	}
	return nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv(apiKeyEnvVar); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv("MANUS_BASE_URL"); v != "" && c.BaseURL == "" {
		c.BaseURL = v
	}
	if v := os.Getenv("TASKWATCH_WEBHOOK_ADDR"); v != "" && c.WebhookAddr == "" {
		c.WebhookAddr = v
	}
	if v := os.Getenv("TASKWATCH_WEBHOOK_URL"); v != "" && c.WebhookURL == "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" && c.NATSURL == "" {
		c.NATSURL = v
	}
}

// Validate checks that the configuration can drive a client.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New(errors.ErrCodeUnauthorized,
			"no API key: set api_key in taskwatch.toml or "+apiKeyEnvVar)
	}
	if c.PollInterval <= 0 {
		return errors.InvalidInput("poll_interval must be positive")
	}
	if c.MaxWait <= 0 {
		return errors.InvalidInput("max_wait must be positive")
	}
	return nil
}
