// Package config builds the immutable process configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. The resulting Config is constructed once at startup
// and handed to every component; request-handling code never reads the
// environment directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default provider endpoints, used when neither the config file nor the
// environment overrides them.
const (
	DefaultClaudeURL   = "https://api.anthropic.com/v1/messages"
	DefaultDeepSeekURL = "https://api.deepseek.com/chat/completions"
	DefaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	DefaultAlibabaURL  = "https://dashscope-intl.aliyuncs.com/compatible-mode/v1/chat/completions"
	DefaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent"

	DefaultOutreachBaseURL = "https://api.openai.com/v1"
	DefaultDefaultModel    = "gemini"
	DefaultTokenTTL        = 24 * time.Hour
)

type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Storage  Storage  `yaml:"storage"`
	Models   Models   `yaml:"models"`
	Outreach Outreach `yaml:"outreach"`
	Google   Google   `yaml:"google"`
	Auth     Auth     `yaml:"auth"`
}

type Server struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Addr returns the listen address.
func (s Server) Addr() string {
	return s.Host + ":" + s.Port
}

type Database struct {
	Path string `yaml:"path"`
}

type Storage struct {
	Dir string `yaml:"dir"`
}

// Models configures the chat-completion providers. Providers is keyed by model
// identifier (claude, deepseek, chatgpt, alibaba, gemini).
type Models struct {
	Default   string              `yaml:"default"`
	Strict    bool                `yaml:"strict"`
	Timeout   time.Duration       `yaml:"timeout"`
	Providers map[string]Provider `yaml:"providers"`
}

type Provider struct {
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

type Outreach struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type Google struct {
	CloudAPIKey  string `yaml:"cloud_api_key"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   Server{Host: "127.0.0.1", Port: "8080"},
		Database: Database{Path: "nexus.db"},
		Storage:  Storage{Dir: "storage"},
		Models: Models{
			Default: DefaultDefaultModel,
			Timeout: 30 * time.Second,
			Providers: map[string]Provider{
				"claude":   {URL: DefaultClaudeURL},
				"deepseek": {URL: DefaultDeepSeekURL},
				"chatgpt":  {URL: DefaultOpenAIURL},
				"alibaba":  {URL: DefaultAlibabaURL},
				"gemini":   {URL: DefaultGeminiURL},
			},
		},
		Outreach: Outreach{BaseURL: DefaultOutreachBaseURL},
		Auth:     Auth{TokenTTL: DefaultTokenTTL},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var fromFile Config
		if err := yaml.Unmarshal(raw, &fromFile); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.merge(fromFile)
	}

	cfg.applyEnv(os.Getenv)
	cfg.normalize()
	return &cfg, nil
}

// merge overlays every non-zero field of other onto c.
func (c *Config) merge(other Config) {
	setString(&c.Server.Host, other.Server.Host)
	setString(&c.Server.Port, other.Server.Port)
	setString(&c.Database.Path, other.Database.Path)
	setString(&c.Storage.Dir, other.Storage.Dir)
	setString(&c.Models.Default, other.Models.Default)
	if other.Models.Strict {
		c.Models.Strict = true
	}
	if other.Models.Timeout > 0 {
		c.Models.Timeout = other.Models.Timeout
	}
	for id, p := range other.Models.Providers {
		id = strings.ToLower(strings.TrimSpace(id))
		current := c.Models.Providers[id]
		setString(&current.APIKey, p.APIKey)
		setString(&current.URL, p.URL)
		c.Models.Providers[id] = current
	}
	setString(&c.Outreach.APIKey, other.Outreach.APIKey)
	setString(&c.Outreach.BaseURL, other.Outreach.BaseURL)
	setString(&c.Google.CloudAPIKey, other.Google.CloudAPIKey)
	setString(&c.Google.ClientID, other.Google.ClientID)
	setString(&c.Google.ClientSecret, other.Google.ClientSecret)
	setString(&c.Google.RedirectURI, other.Google.RedirectURI)
	setString(&c.Auth.JWTSecret, other.Auth.JWTSecret)
	if other.Auth.TokenTTL > 0 {
		c.Auth.TokenTTL = other.Auth.TokenTTL
	}
}

var providerEnv = map[string]string{
	"claude":   "CLAUDE",
	"deepseek": "DEEPSEEK",
	"chatgpt":  "OPENAI",
	"alibaba":  "ALIBABA",
	"gemini":   "GEMINI",
}

func (c *Config) applyEnv(getenv func(string) string) {
	setString(&c.Server.Host, getenv("HOST"))
	setString(&c.Server.Port, getenv("PORT"))
	setString(&c.Database.Path, getenv("NEXUS_DB_PATH"))
	setString(&c.Storage.Dir, getenv("NEXUS_STORAGE_DIR"))
	setString(&c.Models.Default, getenv("NEXUS_DEFAULT_MODEL"))
	if v := strings.TrimSpace(getenv("NEXUS_STRICT_MODELS")); v != "" {
		if strict, err := strconv.ParseBool(v); err == nil {
			c.Models.Strict = strict
		}
	}
	if v := strings.TrimSpace(getenv("NEXUS_MODEL_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Models.Timeout = d
		}
	}

	for id, prefix := range providerEnv {
		p := c.Models.Providers[id]
		setString(&p.APIKey, getenv(prefix+"_API_KEY"))
		setString(&p.URL, getenv(prefix+"_API_URL"))
		c.Models.Providers[id] = p
	}

	setString(&c.Outreach.APIKey, getenv("NEXUS_OUTREACH_API_KEY"))
	setString(&c.Outreach.BaseURL, getenv("NEXUS_OUTREACH_BASE_URL"))

	setString(&c.Google.CloudAPIKey, getenv("GOOGLE_CLOUD_API_KEY"))
	setString(&c.Google.ClientID, getenv("GOOGLE_CLIENT_ID"))
	setString(&c.Google.ClientSecret, getenv("GOOGLE_CLIENT_SECRET"))
	setString(&c.Google.RedirectURI, getenv("GOOGLE_REDIRECT_URI"))

	setString(&c.Auth.JWTSecret, getenv("JWT_SECRET"))
	if v := strings.TrimSpace(getenv("NEXUS_TOKEN_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Auth.TokenTTL = d
		}
	}
}

func (c *Config) normalize() {
	c.Models.Default = strings.ToLower(strings.TrimSpace(c.Models.Default))
	if c.Models.Default == "" {
		c.Models.Default = DefaultDefaultModel
	}
	// The outreach generator talks to OpenAI; reuse the chatgpt key unless a
	// dedicated one was configured.
	if c.Outreach.APIKey == "" {
		c.Outreach.APIKey = c.Models.Providers["chatgpt"].APIKey
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
