package config

import (
	"os"
	"strconv"

	"github.com/FairForge/rampart/internal/report"
)

// LoadFromEnv applies RAMPART_* environment overrides on top of cfg.
// Unparseable numeric values are ignored in favor of what is already
// set; an unknown preset name is an error.
func LoadFromEnv(cfg *Config) error {
	if port := os.Getenv("RAMPART_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if level := os.Getenv("RAMPART_LOG_LEVEL"); level != "" {
		cfg.Server.LogLevel = level
	}

	// Target
	if url := os.Getenv("RAMPART_TARGET_URL"); url != "" {
		cfg.Plan.Target.URL = url
	}
	if method := os.Getenv("RAMPART_TARGET_METHOD"); method != "" {
		cfg.Plan.Target.Method = method
	}
	if url := os.Getenv("RAMPART_HEALTH_URL"); url != "" {
		health := cfg.Plan.Target
		health.URL = url
		health.Method = "GET"
		health.Body = ""
		cfg.Plan.Health = &health
	}

	// Load shape
	if rps := os.Getenv("RAMPART_MAX_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.Load.MaxRPS = v
		}
	}
	if timeout := os.Getenv("RAMPART_TIMEOUT_SECONDS"); timeout != "" {
		if v, err := strconv.Atoi(timeout); err == nil {
			cfg.Load.TimeoutSeconds = v
		}
	}
	if preset := os.Getenv("RAMPART_PRESET"); preset != "" {
		if err := ApplyPreset(&cfg.Plan, preset); err != nil {
			return err
		}
	}

	// Auth
	if mode := os.Getenv("RAMPART_AUTH_MODE"); mode != "" {
		cfg.Auth.Mode = mode
	}
	if token := os.Getenv("RAMPART_BEARER_TOKEN"); token != "" {
		cfg.Auth.BearerToken = token
	}
	if secret := os.Getenv("RAMPART_JWT_SECRET"); secret != "" {
		cfg.Auth.JWT.Secret = secret
	}

	// Monitoring
	if url := os.Getenv("RAMPART_STATS_URL"); url != "" {
		cfg.Monitor.Mode = MonitorHTTP
		cfg.Monitor.HTTP.StatsURL = url
	}

	// Report sinks
	if dir := os.Getenv("RAMPART_REPORT_DIR"); dir != "" {
		if cfg.Reports.File == nil {
			cfg.Reports.File = &report.FileConfig{}
		}
		cfg.Reports.File.Dir = dir
	}
	if bucket := os.Getenv("RAMPART_S3_BUCKET"); bucket != "" {
		if cfg.Reports.S3 == nil {
			cfg.Reports.S3 = &report.S3Config{}
		}
		cfg.Reports.S3.Bucket = bucket
		cfg.Reports.S3.Endpoint = os.Getenv("RAMPART_S3_ENDPOINT")
		cfg.Reports.S3.AccessKey = os.Getenv("RAMPART_S3_ACCESS_KEY")
		cfg.Reports.S3.SecretKey = os.Getenv("RAMPART_S3_SECRET_KEY")
	}
	if host := os.Getenv("RAMPART_POSTGRES_HOST"); host != "" {
		if cfg.Reports.Postgres == nil {
			cfg.Reports.Postgres = &report.PostgresConfig{}
		}
		cfg.Reports.Postgres.Host = host
		if port := os.Getenv("RAMPART_POSTGRES_PORT"); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Reports.Postgres.Port = p
			}
		}
		if db := os.Getenv("RAMPART_POSTGRES_DB"); db != "" {
			cfg.Reports.Postgres.Database = db
		}
		if user := os.Getenv("RAMPART_POSTGRES_USER"); user != "" {
			cfg.Reports.Postgres.User = user
		}
		if pass := os.Getenv("RAMPART_POSTGRES_PASSWORD"); pass != "" {
			cfg.Reports.Postgres.Password = pass
		}
	}

	return nil
}

// GetEnvOrDefault returns the environment variable or a default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
