package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SettingsVersion participates in cache hashing: bumping it invalidates
// every cached schema after a change to prompt or payload semantics.
const SettingsVersion = "3"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Provider   ProviderConfig   `yaml:"provider"`
	Generation GenerationConfig `yaml:"generation"`
	Site       SiteConfig       `yaml:"site"`
	Business   BusinessConfig   `yaml:"business"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	MCPPort int    `yaml:"mcp_port"`
	Token   string `yaml:"token"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ProviderConfig names the active upstream and holds per-provider settings.
type ProviderConfig struct {
	Active string          `yaml:"active"` // "openai" or "claude"
	OpenAI ProviderAccount `yaml:"openai"`
	Claude ProviderAccount `yaml:"claude"`
}

type ProviderAccount struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	ContextWindow int    `yaml:"context_window"`
}

type GenerationConfig struct {
	TwoPass            bool `yaml:"two_pass"`
	MaxContentChars    int  `yaml:"max_content_chars"`
	MinContentChars    int  `yaml:"min_content_chars"`
	FrontendFetch      bool `yaml:"frontend_fetch"`
	ConflictGate       bool `yaml:"conflict_gate"`
	InjectInHead       bool `yaml:"inject_in_head"`
	StoreAnalysisDebug bool `yaml:"store_analysis_debug"`
}

type SiteConfig struct {
	Name             string   `yaml:"name"`
	URL              string   `yaml:"url"`
	Description      string   `yaml:"description"`
	EnabledPageTypes []string `yaml:"enabled_page_types"`
}

// BusinessConfig is the organization profile merged into every pass-2 prompt.
type BusinessConfig struct {
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	Industry     string     `yaml:"industry"`
	LogoURL      string     `yaml:"logo_url"`
	Email        string     `yaml:"email"`
	Phone        string     `yaml:"phone"`
	FoundingDate string     `yaml:"founding_date"`
	SocialLinks  []string   `yaml:"social_links"`
	Locations    []Location `yaml:"locations"`
}

type Location struct {
	Name       string `yaml:"name"`
	Street     string `yaml:"street"`
	City       string `yaml:"city"`
	Region     string `yaml:"region"`
	PostalCode string `yaml:"postal_code"`
	Country    string `yaml:"country"`
	Phone      string `yaml:"phone"`
	Email      string `yaml:"email"`
	// OpeningHours maps lowercase weekday names ("monday") to time ranges
	// ("09:00-17:00"). Closed days are simply absent.
	OpeningHours map[string]string `yaml:"opening_hours"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Provider: ProviderConfig{
			Active: "openai",
			OpenAI: ProviderAccount{
				BaseURL:       "https://api.openai.com/v1",
				Model:         "gpt-4o-mini",
				ContextWindow: 128000,
			},
			Claude: ProviderAccount{
				BaseURL:       "https://api.anthropic.com/v1",
				Model:         "claude-sonnet-4-5",
				ContextWindow: 200000,
			},
		},
		Generation: GenerationConfig{
			TwoPass:         true,
			MaxContentChars: 12000,
			MinContentChars: 50,
			ConflictGate:    true,
			InjectInHead:    true,
		},
		Site: SiteConfig{
			EnabledPageTypes: []string{"page", "post"},
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "ldgen")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ldgen"
	}
	return filepath.Join(home, ".local", "share", "ldgen")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ldgen", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "ldgen", "config.yaml")
}

// Load reads configuration from the yaml file at path (a missing file is
// fine, defaults apply), then applies LDGEN_* environment overrides, then
// checks that the active provider has an API key.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults + env only
	default:
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable for generation.
func (c Config) Validate() error {
	acct, err := c.ActiveAccount()
	if err != nil {
		return err
	}
	if acct.APIKey == "" {
		return fmt.Errorf("missing API key for provider %q: set it in the config file or via LDGEN_%s_API_KEY",
			c.Provider.Active, envSuffix(c.Provider.Active))
	}
	return nil
}

// ActiveAccount returns the account settings for the active provider.
func (c Config) ActiveAccount() (ProviderAccount, error) {
	switch c.Provider.Active {
	case "openai":
		return c.Provider.OpenAI, nil
	case "claude":
		return c.Provider.Claude, nil
	default:
		return ProviderAccount{}, fmt.Errorf("unknown provider %q", c.Provider.Active)
	}
}

// PageTypeEnabled reports whether schema injection is enabled for the given
// page type.
func (c Config) PageTypeEnabled(pageType string) bool {
	for _, t := range c.Site.EnabledPageTypes {
		if t == pageType {
			return true
		}
	}
	return false
}

func envSuffix(provider string) string {
	if provider == "claude" {
		return "CLAUDE"
	}
	return "OPENAI"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LDGEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LDGEN_MCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.MCPPort = port
		}
	}
	if v := os.Getenv("LDGEN_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("LDGEN_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("LDGEN_PROVIDER"); v != "" {
		cfg.Provider.Active = v
	}
	if v := os.Getenv("LDGEN_OPENAI_API_KEY"); v != "" {
		cfg.Provider.OpenAI.APIKey = v
	}
	if v := os.Getenv("LDGEN_OPENAI_BASE_URL"); v != "" {
		cfg.Provider.OpenAI.BaseURL = v
	}
	if v := os.Getenv("LDGEN_OPENAI_MODEL"); v != "" {
		cfg.Provider.OpenAI.Model = v
	}
	if v := os.Getenv("LDGEN_CLAUDE_API_KEY"); v != "" {
		cfg.Provider.Claude.APIKey = v
	}
	if v := os.Getenv("LDGEN_CLAUDE_BASE_URL"); v != "" {
		cfg.Provider.Claude.BaseURL = v
	}
	if v := os.Getenv("LDGEN_CLAUDE_MODEL"); v != "" {
		cfg.Provider.Claude.Model = v
	}
}
