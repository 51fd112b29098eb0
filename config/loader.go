package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads and validates the application configuration from the first
// readable path. Defaults are applied after validation.
func Load(paths ...string) (AppConfig, error) {
	if len(paths) == 0 {
		paths = []string{"config.yml", "./config/config.yml"}
	}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return AppConfig{}, fmt.Errorf("config: no readable config file: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config: parse: %w", err)
	}

	v := validator.New()
	if err := v.Struct(cfg.Server); err != nil {
		return AppConfig{}, fmt.Errorf("config: server: %w", err)
	}
	if err := v.Struct(cfg.GTFS); err != nil {
		return AppConfig{}, fmt.Errorf("config: gtfs: %w", err)
	}
	if err := v.Struct(cfg.GTFSRT); err != nil {
		return AppConfig{}, fmt.Errorf("config: gtfsrt: %w", err)
	}
	if err := v.Struct(cfg.Cache); err != nil {
		return AppConfig{}, fmt.Errorf("config: cache: %w", err)
	}
	if err := v.Struct(cfg.Breaker); err != nil {
		return AppConfig{}, fmt.Errorf("config: breaker: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 16181
	}
	if cfg.Filter.BusyRouteThreshold == 0 {
		cfg.Filter.BusyRouteThreshold = DefaultBusyRouteThreshold
	}
	if cfg.Filter.DistanceFilterThreshold == 0 {
		cfg.Filter.DistanceFilterThreshold = DefaultDistanceFilterThreshold
	}
	if cfg.GTFSRT.ReadIntervalMS == 0 {
		cfg.GTFSRT.ReadIntervalMS = 15000
	}
	if cfg.GTFSRT.TimeoutMS == 0 {
		cfg.GTFSRT.TimeoutMS = 10000
	}
}
