package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// WhatsAppConfig holds WhatsApp Cloud API credentials and endpoints.
type WhatsAppConfig struct {
	Token         string `yaml:"token" envconfig:"WHATSAPP_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"PHONE_NUMBER_ID"`
	VerifyToken   string `yaml:"verify_token" envconfig:"VERIFY_TOKEN"`
	// APIBaseURL overrides the Graph API origin; empty -> production default.
	APIBaseURL string `yaml:"api_base_url" envconfig:"WHATSAPP_API_BASE_URL"`
	APIVersion string `yaml:"api_version" envconfig:"WHATSAPP_API_VERSION"`
}

// CollaboratorConfig points at the external ticket-generation endpoint.
type CollaboratorConfig struct {
	URL string `yaml:"url" envconfig:"APPS_SCRIPT_URL"`
}

// DriveConfig holds settings for the ticket asset folder searched by the poll path.
type DriveConfig struct {
	FolderID        string `yaml:"folder_id" envconfig:"GOOGLE_DRIVE_FOLDER_ID"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"GOOGLE_CREDENTIALS_FILE"`
}

// FlowConfig controls conversation and reconciliation timing.
type FlowConfig struct {
	SessionTTLSeconds       int `yaml:"session_ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
	PendingTTLSeconds       int `yaml:"pending_ttl_seconds" envconfig:"PENDING_TTL_SECONDS"`
	PollInitialDelaySeconds int `yaml:"poll_initial_delay_seconds" envconfig:"POLL_INITIAL_DELAY_SECONDS"`
	PollIntervalSeconds     int `yaml:"poll_interval_seconds" envconfig:"POLL_INTERVAL_SECONDS"`
	PollMaxAttempts         int `yaml:"poll_max_attempts" envconfig:"POLL_MAX_ATTEMPTS"`
}

// ServerConfig specifies the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen" envconfig:"SERVER_LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
	File   string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// Config aggregates the service configuration.
type Config struct {
	WhatsApp     WhatsAppConfig     `yaml:"whatsapp"`
	Collaborator CollaboratorConfig `yaml:"collaborator"`
	Drive        DriveConfig        `yaml:"drive"`
	Flow         FlowConfig         `yaml:"flow"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.WhatsApp.Token) == "" {
		return fmt.Errorf("whatsapp.token is required")
	}
	if strings.TrimSpace(cfg.WhatsApp.PhoneNumberID) == "" {
		return fmt.Errorf("whatsapp.phone_number_id is required")
	}
	if strings.TrimSpace(cfg.WhatsApp.VerifyToken) == "" {
		return fmt.Errorf("whatsapp.verify_token is required")
	}
	if cfg.WhatsApp.APIVersion == "" {
		cfg.WhatsApp.APIVersion = "v18.0"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}

	if cfg.Flow.SessionTTLSeconds == 0 {
		cfg.Flow.SessionTTLSeconds = 3600
	}
	if cfg.Flow.PendingTTLSeconds == 0 {
		cfg.Flow.PendingTTLSeconds = 1800
	}
	if cfg.Flow.PollInitialDelaySeconds == 0 {
		cfg.Flow.PollInitialDelaySeconds = 5
	}
	if cfg.Flow.PollIntervalSeconds == 0 {
		cfg.Flow.PollIntervalSeconds = 10
	}
	if cfg.Flow.PollMaxAttempts == 0 {
		cfg.Flow.PollMaxAttempts = 12
	}
	if cfg.Flow.SessionTTLSeconds < 0 || cfg.Flow.PendingTTLSeconds < 0 {
		return fmt.Errorf("flow TTLs must be >= 0")
	}
	if cfg.Flow.PollInitialDelaySeconds < 0 || cfg.Flow.PollIntervalSeconds <= 0 || cfg.Flow.PollMaxAttempts <= 0 {
		return fmt.Errorf("flow poll settings must be positive")
	}
	// The pending entry must outlive the whole poll budget, otherwise the
	// safety-net expiry could race a still-running poll chain.
	pollWindow := cfg.Flow.PollInitialDelaySeconds + cfg.Flow.PollIntervalSeconds*cfg.Flow.PollMaxAttempts
	if cfg.Flow.PendingTTLSeconds <= pollWindow {
		return fmt.Errorf("flow.pending_ttl_seconds (%d) must exceed the poll window (%ds)", cfg.Flow.PendingTTLSeconds, pollWindow)
	}

	return nil
}
