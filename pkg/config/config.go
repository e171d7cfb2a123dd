package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "PIGEON"
	defaultPort         = "8080"
	defaultEnvironment  = "development"
	defaultDatabasePath = "./data/pigeon.db"
	defaultLogLevel     = "info"
	defaultCORSOrigins  = "*"
)

type Config struct {
	Port            string
	Environment     string
	DatabasePath    string
	JWTSecret       string
	LogLevel        string
	CORSOrigins     string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper
// instance. Settings map to PIGEON_* environment variables, e.g.
// database.path -> PIGEON_DATABASE_PATH.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", defaultPort)
	v.SetDefault("environment", defaultEnvironment)
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("cors.origins", defaultCORSOrigins)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("vapid.public_key", "")
	v.SetDefault("vapid.private_key", "")
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetString("port"),
		Environment:     v.GetString("environment"),
		DatabasePath:    v.GetString("database.path"),
		JWTSecret:       v.GetString("jwt.secret"),
		LogLevel:        v.GetString("log.level"),
		CORSOrigins:     v.GetString("cors.origins"),
		VAPIDPublicKey:  v.GetString("vapid.public_key"),
		VAPIDPrivateKey: v.GetString("vapid.private_key"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
