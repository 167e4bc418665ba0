// Package config handles configuration for the server component, including
// defaults, JSON overlay, and command-line flags.
package config

// Config holds runtime settings for the covault server.
//
// Fields:
//   - MongoURI / MongoDatabase: document store connection. An empty URI keeps
//     everything in the in-memory backend, which is only useful for
//     development and tests.
//   - NatsURL: notification bus. Empty disables outbound notifications.
//   - MetricsAddr: bind address for the Prometheus scrape endpoint. Empty
//     disables it.
//   - LogLevel: debug, info, warn or error.
//   - S3RootUser / S3RootPassword: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings. An empty
//     base endpoint keeps binary payloads in memory.
type Config struct {
	MongoURI      string
	MongoDatabase string
	NatsURL       string
	MetricsAddr   string
	LogLevel      string

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults. They run the
// server entirely in memory; production deployments override the external
// backends.
func (c *Config) LoadDefaults() {
	c.MongoURI = ""
	c.MongoDatabase = "covault"
	c.NatsURL = ""
	c.MetricsAddr = ":9100"
	c.LogLevel = "info"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "covault"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, environment variables and finally
// command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
