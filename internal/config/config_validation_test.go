package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajaro/RecordManager-Finna/internal/sourceconfig"
)

func validConfig() *Config {
	cfg := &Config{
		Solr:  SolrConfig{UpdateURL: "http://localhost:8983/solr/biblio/update", MaxUpdateRecords: 5000, MaxUpdateSizeKiB: 1024},
		Mongo: MongoConfig{URI: "mongodb://localhost/finna"},
		Logging: LoggingConfig{Level: "info"},
	}
	return cfg
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsMissingUpdateURL(t *testing.T) {
	cfg := validConfig()
	cfg.Solr.UpdateURL = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solr.update_url")
}

func TestValidateRejectsMissingMongoURI(t *testing.T) {
	cfg := validConfig()
	cfg.Mongo.URI = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo.uri")
}

func TestValidateRejectsNonPositiveBatchLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Solr.MaxUpdateRecords = 0
	cfg.Solr.MaxUpdateSizeKiB = -1

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solr.max_update_records")
	assert.Contains(t, err.Error(), "solr.max_update_size")
}

func TestValidateRejectsUnrecognizedLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidateRejectsDataSourceMissingInstitutionOrFormat(t *testing.T) {
	cfg := validConfig()
	cfg.DataSources = map[string]*sourceconfig.DataSource{
		"alma": {Format: "MARC"},
		"voyager": {Institution: "MyUni"},
	}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datasources.alma.institution")
	assert.Contains(t, err.Error(), "datasources.voyager.format")
}
