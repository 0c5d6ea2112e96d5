package config

import (
	"os"
	"strings"
)

type Config struct {
	Env       string
	HTTPAddr  string
	DBPath    string
	CORSAllow []string
}

// Load reads configuration from the environment with dev-friendly defaults.
func Load() Config {
	cfg := Config{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		DBPath:   getEnv("DB_PATH", "./data/pairprogrammers.db"),
	}
	cfg.CORSAllow = splitCSV(getEnv("CORS_ALLOW", "*"))
	return cfg
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
