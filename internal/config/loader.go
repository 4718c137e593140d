package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/exportval/internal/db"
)

// Config is the runtime configuration for the validator.
type Config struct {
	// CatalogPath points at the operator-curated schema catalog.
	CatalogPath string
	// Store selects the baseline store backend: "fs" or "postgres".
	Store string
	// BaselineDir is the filesystem store root.
	BaselineDir string
	// ListenAddr is the bind address for the serve command.
	ListenAddr string
	// Concurrency bounds parallel multi-file validation runs.
	Concurrency int
	// Development switches zap to its development encoder.
	Development bool

	Database db.Config
}

// DefaultConfig returns the defaults used when no config file exists.
func DefaultConfig() Config {
	return Config{
		CatalogPath: "catalog.yaml",
		Store:       "fs",
		BaselineDir: "baselines",
		ListenAddr:  ":8080",
		Concurrency: 4,
		Database:    db.DefaultConfig(),
	}
}

// Load reads config.yaml from configPath with EXPVAL_* environment overrides.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("EXPVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("catalog.path")
	v.BindEnv("baseline.store")
	v.BindEnv("baseline.dir")
	v.BindEnv("server.listen")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		// No config.yaml; defaults plus env vars apply.
	}

	if v.IsSet("catalog.path") {
		cfg.CatalogPath = v.GetString("catalog.path")
	}
	if v.IsSet("baseline.store") {
		cfg.Store = v.GetString("baseline.store")
	}
	if v.IsSet("baseline.dir") {
		cfg.BaselineDir = v.GetString("baseline.dir")
	}
	if v.IsSet("server.listen") {
		cfg.ListenAddr = v.GetString("server.listen")
	}
	if v.IsSet("runs.concurrency") {
		cfg.Concurrency = v.GetInt("runs.concurrency")
	}
	if v.IsSet("log.development") {
		cfg.Development = v.GetBool("log.development")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	return cfg, nil
}
