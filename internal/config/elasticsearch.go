package config

import (
	"os"
	"time"
)

// ElasticsearchConfig holds the CRM client directory index settings.
// An empty URL disables search indexing.
type ElasticsearchConfig struct {
	URL        string
	Index      string
	Username   string
	Password   string
	MaxRetries int
	Timeout    time.Duration
}

// Enabled reports whether an Elasticsearch endpoint is configured.
func (c ElasticsearchConfig) Enabled() bool {
	return c.URL != ""
}

// LoadElasticsearchConfig reads the Elasticsearch settings from the environment
func LoadElasticsearchConfig() ElasticsearchConfig {
	return ElasticsearchConfig{
		URL:        getEnv("ELASTICSEARCH_URL", ""),
		Index:      getEnv("ELASTICSEARCH_INDEX", "clients"),
		Username:   os.Getenv("ELASTICSEARCH_USERNAME"),
		Password:   os.Getenv("ELASTICSEARCH_PASSWORD"),
		MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
		Timeout:    getEnvDuration("ELASTICSEARCH_TIMEOUT", 5*time.Second),
	}
}
