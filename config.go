package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gobridge/stacc/interpreter"
)

type config struct {
	clientSecret string
	apiURL       string
	timeout      time.Duration
	metricsAddr  string
	devMode      bool
}

var errMissingSecret = errors.New("slack token must be set in the CLIENT_SECRET environment variable")

// configFromEnv reads the configuration, applying defaults for unset values.
func configFromEnv(getenv func(string) string) (config, error) {
	cfg := config{
		clientSecret: getenv("CLIENT_SECRET"),
		apiURL:       getenv("API_URL"),
		timeout:      interpreter.DefaultTimeout,
		metricsAddr:  ":9102",
	}
	if cfg.apiURL == "" {
		cfg.apiURL = interpreter.DefaultURL
	}

	if v := getenv("STACC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing STACC_TIMEOUT: %w", err)
		}
		cfg.timeout = d
	}

	if v := getenv("STACC_METRICS_ADDR"); v != "" {
		cfg.metricsAddr = v
	}

	if v := getenv("STACC_DEV_MODE"); v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing STACC_DEV_MODE: %w", err)
		}
		cfg.devMode = dev
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.clientSecret == "" {
		return errMissingSecret
	}
	if c.timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.timeout)
	}
	return nil
}
