/*
Package config loads bot configuration.

PURPOSE:
  Non-secret settings live in a YAML file; secrets come from the
  environment, optionally seeded from a .env file. Environment variables
  override the file.

SOURCES (later wins):
  1. Defaults
  2. YAML file (-config flag)
  3. .env file, for variables not already set in the process
  4. Process environment

ENVIRONMENT:
  DISCORD_TOKEN           Bot token, used to register commands
  DISCORD_PUBLIC_KEY      Application public key (hex), verifies webhooks
  DISCORD_APPLICATION_ID  Overrides discord.application_id
  GUILD_IDS               Comma-separated, overrides discord.guild_ids
  ADMIN_ROLES             Comma-separated, overrides discord.admin_roles
  STOCK_ALERT_USER_IDS    Comma-separated, overrides discord.stock_alert_user_ids
  ADMIN_API_TOKEN         Bearer token for /api; the admin API is off when unset
  DATABASE_PATH           Overrides database_path
  LOG_LEVEL               debug, info, warn, error

SEE ALSO:
  - cmd/server/main.go: Flags and wiring
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/warp/credit-bot/auth"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration.
type Config struct {
	ListenAddr   string        `yaml:"listen_addr"`
	DatabasePath string        `yaml:"database_path"`
	LogLevel     string        `yaml:"log_level"`
	Discord      DiscordConfig `yaml:"discord"`
	API          APIConfig     `yaml:"api"`
}

// DiscordConfig holds chat platform settings.
type DiscordConfig struct {
	ApplicationID string   `yaml:"application_id"`
	GuildIDs      []string `yaml:"guild_ids"`
	// AdminRoles are role ids whose holders may run admin commands.
	AdminRoles []string `yaml:"admin_roles"`
	// AdminRoleLabel is the role name shown in permission-denied replies.
	AdminRoleLabel string `yaml:"admin_role_label"`
	// AdminPermission also grants admin to members with ADMINISTRATOR.
	AdminPermission bool `yaml:"admin_permission"`
	APIBaseURL      string `yaml:"api_base_url"`
	// StockAlertUserIDs get a direct message when a product sells out.
	StockAlertUserIDs []string `yaml:"stock_alert_user_ids"`

	BotToken  string `yaml:"-"`
	PublicKey string `yaml:"-"`
}

// APIConfig holds admin REST API settings.
type APIConfig struct {
	CORSOrigins []string `yaml:"cors_origins"`
	Token       string   `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:   ":8080",
		DatabasePath: "credits.db",
		LogLevel:     "info",
		Discord: DiscordConfig{
			AdminRoleLabel: "Admin",
		},
		API: APIConfig{
			CORSOrigins: []string{"*"},
		},
	}
}

// Load builds a Config from path (optional) and the environment. envFiles
// defaults to ".env"; missing env files are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Discord.BotToken = getEnv("DISCORD_TOKEN", c.Discord.BotToken)
	c.Discord.PublicKey = getEnv("DISCORD_PUBLIC_KEY", c.Discord.PublicKey)
	c.Discord.ApplicationID = getEnv("DISCORD_APPLICATION_ID", c.Discord.ApplicationID)
	c.API.Token = getEnv("ADMIN_API_TOKEN", c.API.Token)
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	if v := os.Getenv("GUILD_IDS"); v != "" {
		c.Discord.GuildIDs = splitList(v)
	}
	if v := os.Getenv("ADMIN_ROLES"); v != "" {
		c.Discord.AdminRoles = splitList(v)
	}
	if v := os.Getenv("STOCK_ALERT_USER_IDS"); v != "" {
		c.Discord.StockAlertUserIDs = splitList(v)
	}
}

// Validate checks settings that every mode needs.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if len(c.Discord.AdminRoles) == 0 && !c.Discord.AdminPermission {
		errs = append(errs, errors.New("no admin configured: set discord.admin_roles or discord.admin_permission"))
	}
	return errors.Join(errs...)
}

// Authorizer builds the admin capability check from the discord settings.
func (c *Config) Authorizer() auth.Authorizer {
	authorizers := []auth.Authorizer{auth.NewRoleAuthorizer(c.Discord.AdminRoles...)}
	if c.Discord.AdminPermission {
		authorizers = append(authorizers, auth.PermissionAuthorizer{Mask: auth.PermissionAdministrator})
	}
	return auth.AnyOf(authorizers...)
}

// NewLogger creates a JSON logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
