package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Working-state ids the cascade promotes an export document to once all
	// of its medicine lines have completed the corresponding transition.
	// Empty means the cascade skips promotion for that transition kind.
	AllExportedWorkingStateID       string `mapstructure:"ALL_EXPORTED_WORKING_STATE_ID"`
	AllActualExportedWorkingStateID string `mapstructure:"ALL_ACTUAL_EXPORTED_WORKING_STATE_ID"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("ALL_EXPORTED_WORKING_STATE_ID")
	v.BindEnv("ALL_ACTUAL_EXPORTED_WORKING_STATE_ID")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is internally consistent. The
// cascade working-state ids are optional; when set they must not be blank
// padding, because a whitespace id would silently never match anything.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.DBMaxConns, c.DBMinConns)
	}
	if c.AllExportedWorkingStateID != strings.TrimSpace(c.AllExportedWorkingStateID) {
		return fmt.Errorf("ALL_EXPORTED_WORKING_STATE_ID must not contain leading/trailing whitespace")
	}
	if c.AllActualExportedWorkingStateID != strings.TrimSpace(c.AllActualExportedWorkingStateID) {
		return fmt.Errorf("ALL_ACTUAL_EXPORTED_WORKING_STATE_ID must not contain leading/trailing whitespace")
	}
	return nil
}
