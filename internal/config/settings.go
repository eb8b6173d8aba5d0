package config

import (
	"errors"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultBaseURL = "http://127.0.0.1:8000"
	defaultAppName = "assistant"
	defaultWelcome = "Hi! How can I help you today?"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Chat     ChatConfig     `toml:"chat"`
	Identity IdentityConfig `toml:"identity"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	AppName string `toml:"app_name"`
}

type ChatConfig struct {
	WelcomeMessage string `toml:"welcome_message"`
}

type IdentityConfig struct {
	Email string `toml:"email"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: defaultBaseURL,
			AppName: defaultAppName,
		},
		Chat: ChatConfig{
			WelcomeMessage: defaultWelcome,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads ~/.chatcore/config.toml and applies environment overrides.
// A missing or empty file yields the defaults.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return loadFromPath(path)
}

func loadFromPath(path string) (Config, error) {
	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("CHATCORE_SERVER_URL")); v != "" {
		c.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATCORE_APP_NAME")); v != "" {
		c.Server.AppName = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATCORE_EMAIL")); v != "" {
		c.Identity.Email = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATCORE_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
}

func (c Config) BaseURL() string {
	url := strings.TrimSpace(c.Server.BaseURL)
	if url == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(url, "/")
}

func (c Config) AppName() string {
	name := strings.TrimSpace(c.Server.AppName)
	if name == "" {
		return defaultAppName
	}
	return name
}

func (c Config) WelcomeMessage() string {
	msg := strings.TrimSpace(c.Chat.WelcomeMessage)
	if msg == "" {
		return defaultWelcome
	}
	return msg
}

func (c Config) Email() string {
	return strings.TrimSpace(c.Identity.Email)
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}
