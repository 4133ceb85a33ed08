package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given files, skipping missing ones.
// Variables already present in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool parses key as a boolean.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// EnvDuration parses key as a time.Duration.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overrides fields of c from SCRAPER_* variables.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("SCRAPER_API_KEY"); ok {
		c.APIKey = v
	}
	if v, ok := EnvString("SCRAPER_ENDPOINT"); ok {
		c.Endpoint = v
	}
	if v, ok := EnvString("SCRAPER_CACHE_PATH"); ok {
		c.CachePath = v
	}
	if v, ok := EnvString("SCRAPER_OUTPUT"); ok {
		c.OutputFile = v
	}
	if v, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}

	if v, ok, err := EnvInt("SCRAPER_CONCURRENCY"); err != nil {
		return err
	} else if ok {
		c.Concurrency = v
	}
	if v, ok, err := EnvBool("SCRAPER_INITIAL_DELAY"); err != nil {
		return err
	} else if ok {
		c.UseInitialDelay = v
	}
	if v, ok, err := EnvDuration("SCRAPER_TASK_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.TaskTimeout = v
	}
	return nil
}
