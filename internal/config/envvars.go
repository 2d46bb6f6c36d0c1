package config

import (
	"os"
	"sort"
	"strconv"
)

// EnvVarMapping maps environment variables to config paths.
var EnvVarMapping = map[string]string{
	"DUCKLING_ADDR":         "server.addr",
	"DUCKLING_DB_DRIVER":    "db.driver",
	"DUCKLING_DB_PATH":      "db.path",
	"DUCKLING_DB_DSN":       "db.dsn",
	"DUCKLING_TICK_SECONDS": "scheduler.tick_seconds",
	"DUCKLING_LOG_LEVEL":    "log.level",
	"DUCKLING_LOG_FORMAT":   "log.format",
	"DUCKLING_JIRA_URL":     "jira.url",
	"DUCKLING_JIRA_EMAIL":   "jira.email",
	"DUCKLING_JIRA_TOKEN":   "jira.api_token",
}

// ApplyEnvVars applies environment variable overrides to cfg and returns
// the config paths that were overridden, sorted.
func ApplyEnvVars(cfg *Config) []string {
	var overridden []string

	for envVar, path := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		if applyEnvVar(cfg, path, value) {
			overridden = append(overridden, path)
		}
	}

	sort.Strings(overridden)
	return overridden
}

// applyEnvVar applies a single override. Returns false when the value
// does not parse for the target field.
func applyEnvVar(cfg *Config, path, value string) bool {
	switch path {
	case "server.addr":
		cfg.Server.Addr = value
	case "db.driver":
		cfg.DB.Driver = value
	case "db.path":
		cfg.DB.Path = value
	case "db.dsn":
		cfg.DB.DSN = value
	case "scheduler.tick_seconds":
		v, err := strconv.Atoi(value)
		if err != nil || v < 1 {
			return false
		}
		cfg.Scheduler.TickSeconds = v
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	case "jira.url":
		cfg.Jira.URL = value
	case "jira.email":
		cfg.Jira.Email = value
	case "jira.api_token":
		cfg.Jira.APIToken = value
	default:
		return false
	}
	return true
}
