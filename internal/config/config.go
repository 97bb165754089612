package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Vienna must resolve on hosts without zoneinfo

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable that has no legacy name.
const EnvPrefix = "RENTALDESK"

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Gmail    GmailConfig    `mapstructure:"gmail" yaml:"gmail"`
	Admin    AdminConfig    `mapstructure:"admin" yaml:"admin"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type GmailConfig struct {
	ClientID         string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURI      string        `mapstructure:"redirect_uri" yaml:"redirect_uri"`
	SendFrom         string        `mapstructure:"send_from" yaml:"send_from"`
	FetchLimit       int64         `mapstructure:"fetch_limit" yaml:"fetch_limit"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
	MessageTimeout   time.Duration `mapstructure:"message_timeout" yaml:"message_timeout"`
	Timezone         string        `mapstructure:"timezone" yaml:"timezone"`
	AuthURL          string        `mapstructure:"auth_url" yaml:"auth_url"`
	TokenURL         string        `mapstructure:"token_url" yaml:"token_url"`
	APIEndpoint      string        `mapstructure:"api_endpoint" yaml:"api_endpoint"`
}

type AdminConfig struct {
	Password string `mapstructure:"password" yaml:"password"`
}

// legacyEnv maps config keys to the environment names used by the original
// deployment. They take precedence over the prefixed names.
var legacyEnv = map[string]string{
	"server.host":         "HOST",
	"server.port":         "PORT",
	"database.url":        "DATABASE_URL",
	"gmail.client_id":     "GMAIL_CLIENT_ID",
	"gmail.client_secret": "GMAIL_CLIENT_SECRET",
	"gmail.redirect_uri":  "GMAIL_REDIRECT_URI",
	"gmail.send_from":     "GMAIL_SEND_FROM",
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5000,
		},
		Database: DatabaseConfig{
			URL: "rentaldesk.db",
		},
		Gmail: GmailConfig{
			FetchLimit:       50,
			FetchConcurrency: 8,
			MessageTimeout:   15 * time.Second,
			Timezone:         "Europe/Vienna",
		},
	}
}

// Load reads defaults, then the YAML file at path (optional), then the
// environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, legacy, prefixed); err != nil {
			return cfg, err
		}
	}
	if err := v.BindEnv("admin.password", EnvPrefix+"_ADMIN_PASSWORD"); err != nil {
		return cfg, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Location resolves Timezone, falling back to the local zone.
func (g GmailConfig) Location() *time.Location {
	if g.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		log.Printf("⚠️ Unknown timezone %q, using local time: %v", g.Timezone, err)
		return time.Local
	}
	return loc
}

// Redact masks secrets for display.
func Redact(cfg Config) Config {
	masked := cfg
	if masked.Gmail.ClientSecret != "" {
		masked.Gmail.ClientSecret = "****"
	}
	if masked.Admin.Password != "" {
		masked.Admin.Password = "****"
	}
	if i := strings.Index(masked.Database.URL, "@"); i > 0 && strings.Contains(masked.Database.URL, "://") {
		scheme := masked.Database.URL[:strings.Index(masked.Database.URL, "://")+3]
		masked.Database.URL = scheme + "****" + masked.Database.URL[i:]
	}
	return masked
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)

	v.SetDefault("database.url", cfg.Database.URL)

	v.SetDefault("gmail.client_id", cfg.Gmail.ClientID)
	v.SetDefault("gmail.client_secret", cfg.Gmail.ClientSecret)
	v.SetDefault("gmail.redirect_uri", cfg.Gmail.RedirectURI)
	v.SetDefault("gmail.send_from", cfg.Gmail.SendFrom)
	v.SetDefault("gmail.fetch_limit", cfg.Gmail.FetchLimit)
	v.SetDefault("gmail.fetch_concurrency", cfg.Gmail.FetchConcurrency)
	v.SetDefault("gmail.message_timeout", cfg.Gmail.MessageTimeout)
	v.SetDefault("gmail.timezone", cfg.Gmail.Timezone)
	v.SetDefault("gmail.auth_url", cfg.Gmail.AuthURL)
	v.SetDefault("gmail.token_url", cfg.Gmail.TokenURL)
	v.SetDefault("gmail.api_endpoint", cfg.Gmail.APIEndpoint)

	v.SetDefault("admin.password", cfg.Admin.Password)
}
