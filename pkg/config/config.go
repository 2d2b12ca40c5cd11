package config

import "os"

// Config holds substrate node configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	Workspace    string
	SyncEndpoint string
	OTLPEndpoint string
	OTELEnabled  bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	dbPath := os.Getenv("SUBSTRATE_DB")
	if dbPath == "" {
		dbPath = "substrate.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	otlpEndpoint := os.Getenv("OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	return &Config{
		DatabasePath: dbPath,
		LogLevel:     logLevel,
		Workspace:    os.Getenv("SUBSTRATE_WORKSPACE"),
		SyncEndpoint: os.Getenv("SUBSTRATE_SYNC_ENDPOINT"),
		OTLPEndpoint: otlpEndpoint,
		OTELEnabled:  os.Getenv("OTEL_ENABLED") == "true",
	}
}
