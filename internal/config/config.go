package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the top-level application configuration.
// All fields are populated from environment variables; a .env file is
// honoured for local development.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	OpenAI  OpenAIConfig
	Google  GoogleConfig
	CRM     CRMConfig
	Mailer  MailerConfig
	Session SessionConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	HTTPAddr       string `envconfig:"HTTP_ADDR" default:":8080"`
	BaseURL        string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:":9090"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"16777216"`
}

// AuthConfig holds the optional basic-auth gate in front of the API.
// Users is a comma-separated list of username:password pairs; when empty
// the surface is open.
type AuthConfig struct {
	Users string `envconfig:"BASIC_AUTH_USERS" default:""`
}

// UserMap parses the configured basic-auth pairs into a map.
// Malformed entries (no colon) are skipped.
func (a AuthConfig) UserMap() map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(a.Users, ",") {
		name, pass, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		users[strings.TrimSpace(name)] = strings.TrimSpace(pass)
	}
	return users
}

// Assistant describes one configured AI assistant.
type Assistant struct {
	ID          string `json:"id"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// OpenAIConfig holds the AI chat relay settings.
// AssistantsJSON optionally overrides the built-in assistant table with a
// JSON object of display name -> {id, color, description}.
type OpenAIConfig struct {
	APIKey         string `envconfig:"OPENAI_API_KEY" default:""`
	AssistantsJSON string `envconfig:"OPENAI_ASSISTANTS" default:""`
}

// defaultAssistants is the assistant table used when no override is configured.
var defaultAssistants = map[string]Assistant{
	"Marketing Expert": {
		ID:          "asst_5U9UaLBo3j5GYiHHMN9fGnYo",
		Color:       "#9b59b6",
		Description: "Email marketing & B2B sales strategies",
	},
	"General Assistant": {
		ID:          "asst_N7h1H9a6xjtBrQwYMsdRZILZ",
		Color:       "#3498db",
		Description: "General business assistance",
	},
}

// Assistants returns the configured assistant table.
func (o OpenAIConfig) Assistants() (map[string]Assistant, error) {
	if o.AssistantsJSON == "" {
		return defaultAssistants, nil
	}
	assistants := make(map[string]Assistant)
	if err := json.Unmarshal([]byte(o.AssistantsJSON), &assistants); err != nil {
		return nil, fmt.Errorf("failed to parse OPENAI_ASSISTANTS: %w", err)
	}
	return assistants, nil
}

// Enabled reports whether the chat relay is configured.
func (o OpenAIConfig) Enabled() bool {
	return o.APIKey != ""
}

// GoogleConfig holds the Gmail OAuth application credentials.
type GoogleConfig struct {
	ClientID     string `envconfig:"GOOGLE_CLIENT_ID" default:""`
	ClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET" default:""`
	// OperatorAliases are comma-separated markers matched (case-insensitively)
	// against the From header to classify a message as sent by the operator.
	OperatorAliases string `envconfig:"MAIL_OPERATOR_ALIASES" default:""`
}

// Enabled reports whether the Gmail integration is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// AliasList returns the operator aliases as a slice, lowercased.
func (g GoogleConfig) AliasList() []string {
	var aliases []string
	for _, a := range strings.Split(g.OperatorAliases, ",") {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			aliases = append(aliases, a)
		}
	}
	return aliases
}

// CRMConfig holds the MiniCRM API settings.
// ActiveStatusJSON is a JSON object of category id -> list of status ids
// considered "active"; it is the fallback used when schema introspection
// is unavailable.
type CRMConfig struct {
	SystemID         string        `envconfig:"MINICRM_SYSTEM_ID" default:""`
	APIKey           string        `envconfig:"MINICRM_API_KEY" default:""`
	BaseURL          string        `envconfig:"MINICRM_BASE_URL" default:"https://r3.minicrm.hu/Api/R3"`
	Timeout          time.Duration `envconfig:"MINICRM_TIMEOUT" default:"10s"`
	Workers          int           `envconfig:"MINICRM_WORKERS" default:"10"`
	ScanCap          int           `envconfig:"MINICRM_SCAN_CAP" default:"100"`
	ActiveStatusJSON string        `envconfig:"MINICRM_ACTIVE_STATUSES" default:""`
}

// Enabled reports whether the CRM integration is configured.
func (c CRMConfig) Enabled() bool {
	return c.SystemID != "" && c.APIKey != ""
}

// ActiveStatuses parses the fallback active-status table.
func (c CRMConfig) ActiveStatuses() (map[int][]int, error) {
	if c.ActiveStatusJSON == "" {
		return nil, nil
	}
	statuses := make(map[int][]int)
	if err := json.Unmarshal([]byte(c.ActiveStatusJSON), &statuses); err != nil {
		return nil, fmt.Errorf("failed to parse MINICRM_ACTIVE_STATUSES: %w", err)
	}
	return statuses, nil
}

// MailerConfig holds bulk-send policy knobs.
type MailerConfig struct {
	// SendDelay is the pause between consecutive bulk sends, to stay under
	// the provider's rate limits.
	SendDelay time.Duration `envconfig:"BULK_SEND_DELAY" default:"500ms"`
	// LogoPath is the image embedded into signatures by content id.
	LogoPath string `envconfig:"BULK_LOGO_PATH" default:"prv.png"`
}

// SessionConfig holds web-session lifecycle settings.
type SessionConfig struct {
	TTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

// Load reads the configuration from the environment.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &cfg, nil
}
