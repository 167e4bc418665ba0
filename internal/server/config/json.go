package config

import (
	"encoding/json"
	"os"

	"github.com/covault/covault/internal/flagx"
)

// JsonConfig is the DTO for the optional JSON configuration file. Absent
// fields unmarshal to empty strings and leave the corresponding Config value
// untouched, so the file only needs to list what it overrides.
type JsonConfig struct {
	MongoURI       string `json:"mongo_uri"`
	MongoDatabase  string `json:"mongo_database"`
	NatsURL        string `json:"nats_url"`
	MetricsAddr    string `json:"metrics_addr"`
	LogLevel       string `json:"log_level"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no file is loaded. An unreadable or invalid
// file panics: a deployment pointing at a broken config file must not start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	overlay(&config.MongoURI, c.MongoURI)
	overlay(&config.MongoDatabase, c.MongoDatabase)
	overlay(&config.NatsURL, c.NatsURL)
	overlay(&config.MetricsAddr, c.MetricsAddr)
	overlay(&config.LogLevel, c.LogLevel)
	overlay(&config.S3RootUser, c.S3RootUser)
	overlay(&config.S3RootPassword, c.S3RootPassword)
	overlay(&config.S3Bucket, c.S3Bucket)
	overlay(&config.S3Region, c.S3Region)
	overlay(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func overlay(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
