package config

import (
	"github.com/caarlos0/env/v11"

	"github.com/unclebandit/payleopard-backend/internal/config/configs"
)

// Config aggregates all configuration sections for the service. Fields are
// populated from environment variables via caarlos0/env; nested structs are
// tagged with envPrefix so their fields are parsed under the given prefix.
type Config struct {
	// Env names the deployment environment (e.g. prod, dev).
	Env string `env:"ENV" envDefault:"prod"`

	HTTP   configs.HTTP         `envPrefix:"HTTP_"`
	Log    configs.Logger       `envPrefix:"LOG_"`
	DB     configs.Postgres     `envPrefix:"DB_"`
	AMQP   configs.AMQP         `envPrefix:"AMQP_"`
	Orch   configs.Orchestrator `envPrefix:"ORCH_"`
	Reaper configs.Reaper       `envPrefix:"REAPER_"`
}

// Load reads configuration from environment variables into a Config.
// Defaults apply for any variable not set.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
