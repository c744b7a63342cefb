package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajaro/RecordManager-Finna/internal/sourceconfig"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "solr:\n  update_url: http://localhost:8983/solr/biblio/update\nmongo:\n  uri: mongodb://localhost/finna\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50000, cfg.Solr.MaxCommitInterval)
	assert.Equal(t, 5000, cfg.Solr.MaxUpdateRecords)
	assert.Equal(t, 1024, cfg.Solr.MaxUpdateSizeKiB)
	assert.Equal(t, "0", cfg.Solr.Timeout)
	assert.Equal(t, "1h", cfg.Solr.LongTimeout)
	assert.Equal(t, len(sourceconfig.DefaultMergedFields), len(cfg.Solr.MergedFields))
	assert.Equal(t, "finna", cfg.Mongo.Database)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "mappings", cfg.Mapping.Directory)
}

func TestLoadDoesNotOverrideExplicitValues(t *testing.T) {
	path := writeConfig(t, `
solr:
  update_url: http://localhost:8983/solr/biblio/update
  max_update_records: 42
mongo:
  uri: mongodb://localhost/finna
  database: custom
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Solr.MaxUpdateRecords)
	assert.Equal(t, "custom", cfg.Mongo.Database)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadNormalizesDataSourceDefaults(t *testing.T) {
	path := writeConfig(t, `
solr:
  update_url: http://localhost:8983/solr/biblio/update
mongo:
  uri: mongodb://localhost/finna
datasources:
  alma:
    institution: MyUni
    format: MARC
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	src := cfg.DataSources["alma"]
	require.NotNil(t, src)
	assert.Equal(t, "alma", src.SourceID)
	assert.Equal(t, "alma", src.IDPrefix)
	assert.True(t, src.IndexMergedPartsValue())
}

func TestLoadEnvironmentOverridesTakePrecedence(t *testing.T) {
	path := writeConfig(t, "solr:\n  update_url: http://localhost:8983/solr/biblio/update\nmongo:\n  uri: mongodb://localhost/finna\n")
	t.Setenv("RECIDX_SOLR_UPDATE_URL", "http://override:8983/solr/biblio/update")
	t.Setenv("RECIDX_LOG_LEVEL", "warn")
	t.Setenv("RECIDX_MONGO_EMPTY_FILTER_MATCHES_ALL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://override:8983/solr/biblio/update", cfg.Solr.UpdateURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Mongo.EmptyFilterMatchesAll)
}

func TestSolrTimeoutParsesZeroAsNoTimeout(t *testing.T) {
	cfg := &Config{Solr: SolrConfig{Timeout: "0", LongTimeout: "not-a-duration"}}
	assert.Equal(t, int64(0), int64(cfg.SolrTimeout()))
	assert.Equal(t, "1h0m0s", cfg.SolrLongTimeout().String())
}
