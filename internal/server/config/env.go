package config

import "os"

// parseEnv overlays Config fields from environment variables. Unset or empty
// variables leave the current value in place.
func parseEnv(config *Config) {
	overlay(&config.MongoURI, os.Getenv("COVAULT_MONGO_URI"))
	overlay(&config.MongoDatabase, os.Getenv("COVAULT_MONGO_DATABASE"))
	overlay(&config.NatsURL, os.Getenv("COVAULT_NATS_URL"))
	overlay(&config.MetricsAddr, os.Getenv("COVAULT_METRICS_ADDR"))
	overlay(&config.LogLevel, os.Getenv("COVAULT_LOG_LEVEL"))
	overlay(&config.S3RootUser, os.Getenv("COVAULT_S3_ROOT_USER"))
	overlay(&config.S3RootPassword, os.Getenv("COVAULT_S3_ROOT_PASSWORD"))
	overlay(&config.S3Bucket, os.Getenv("COVAULT_S3_BUCKET"))
	overlay(&config.S3Region, os.Getenv("COVAULT_S3_REGION"))
	overlay(&config.S3BaseEndpoint, os.Getenv("COVAULT_S3_BASE_ENDPOINT"))
}
