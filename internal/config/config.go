// Package config loads and validates the pipeline's YAML configuration,
// mirroring the teacher's load -> defaults -> env overrides -> validate
// pipeline (internal/config/config.go in the reference project).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/rajaro/RecordManager-Finna/internal/apperr"
	"github.com/rajaro/RecordManager-Finna/internal/sourceconfig"
)

// SolrConfig is the §6 backend-transport configuration table.
type SolrConfig struct {
	UpdateURL             string   `yaml:"update_url"`
	Username              string   `yaml:"username"`
	Password              string   `yaml:"password"`
	BackgroundUpdate      bool     `yaml:"background_update"`
	MaxCommitInterval     int      `yaml:"max_commit_interval"`
	MaxUpdateRecords      int      `yaml:"max_update_records"`
	MaxUpdateSizeKiB      int      `yaml:"max_update_size"`
	JournalFormats        []string `yaml:"journal_formats"`
	EJournalFormats       []string `yaml:"ejournal_formats"`
	ArticleFormats        []string `yaml:"article_formats"`
	EArticleFormats       []string `yaml:"earticle_formats"`
	MergedFields          []string `yaml:"merged_fields"`
	HierarchicalFacets    []string `yaml:"hierarchical_facets"`
	Geocoding             string   `yaml:"geocoding"`
	Timeout               string   `yaml:"timeout"`
	LongTimeout           string   `yaml:"long_timeout"`
	Compress              bool     `yaml:"compress"`
	WatchMappingFiles     bool     `yaml:"watch_mapping_files"`
	TLSInsecureSkipVerify bool     `yaml:"tls_insecure_skip_verify"`
}

// MongoConfig holds record-store connection settings (ambient, §9).
type MongoConfig struct {
	URI                   string `yaml:"uri"`
	Database              string `yaml:"database"`
	Counts                bool   `yaml:"counts"`
	EmptyFilterMatchesAll bool   `yaml:"empty_filter_matches_all"`
}

// LoggingConfig configures the logrus logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// HierarchyConfig holds a global institution_in_building value. It is
// loaded but not read: the projector uses each data source's own
// institution_in_building setting (§4.2 step 8).
type HierarchyConfig struct {
	InstitutionInBuilding string `yaml:"institution_in_building"`
}

// GeocodingConfig feeds §4.2 step 13.
type GeocodingConfig struct {
	Field string `yaml:"field"`
}

// MappingConfig holds a mapping-file directory. It is loaded but not read:
// mapping files are loaded from the paths in each data source's
// field_mappings.
type MappingConfig struct {
	Directory string `yaml:"directory"`
}

// Config is the complete pipeline configuration surface.
type Config struct {
	Solr        SolrConfig                               `yaml:"solr"`
	Mongo       MongoConfig                               `yaml:"mongo"`
	Logging     LoggingConfig                             `yaml:"logging"`
	Tracing     TracingConfig                             `yaml:"tracing"`
	Hierarchy   HierarchyConfig                           `yaml:"hierarchy"`
	Geocoding   GeocodingConfig                            `yaml:"geocoding"`
	Mapping     MappingConfig                             `yaml:"mapping"`
	DataSources map[string]*sourceconfig.DataSource `yaml:"datasources"`
}

// Load reads path, applies defaults, applies RECIDX_*-prefixed
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeConfig, apperr.SeverityFatal, "config", "Load", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperr.Wrap(apperr.CodeConfig, apperr.SeverityFatal, "config", "Load", err)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	for id, src := range cfg.DataSources {
		if src.SourceID == "" {
			src.SourceID = id
		}
		src.Normalize()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Solr.MaxCommitInterval == 0 {
		cfg.Solr.MaxCommitInterval = 50000
	}
	if cfg.Solr.MaxUpdateRecords == 0 {
		cfg.Solr.MaxUpdateRecords = 5000
	}
	if cfg.Solr.MaxUpdateSizeKiB == 0 {
		cfg.Solr.MaxUpdateSizeKiB = 1024
	}
	if cfg.Solr.Timeout == "" {
		cfg.Solr.Timeout = "0"
	}
	if cfg.Solr.LongTimeout == "" {
		cfg.Solr.LongTimeout = "1h"
	}
	if len(cfg.Solr.MergedFields) == 0 {
		cfg.Solr.MergedFields = sourceconfig.DefaultMergedFields
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "finna"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Mapping.Directory == "" {
		cfg.Mapping.Directory = "mappings"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	cfg.Solr.UpdateURL = getEnvString("RECIDX_SOLR_UPDATE_URL", cfg.Solr.UpdateURL)
	cfg.Solr.Username = getEnvString("RECIDX_SOLR_USERNAME", cfg.Solr.Username)
	cfg.Solr.Password = getEnvString("RECIDX_SOLR_PASSWORD", cfg.Solr.Password)
	cfg.Solr.BackgroundUpdate = getEnvBool("RECIDX_SOLR_BACKGROUND_UPDATE", cfg.Solr.BackgroundUpdate)
	cfg.Solr.MaxCommitInterval = getEnvInt("RECIDX_SOLR_MAX_COMMIT_INTERVAL", cfg.Solr.MaxCommitInterval)
	cfg.Solr.MaxUpdateRecords = getEnvInt("RECIDX_SOLR_MAX_UPDATE_RECORDS", cfg.Solr.MaxUpdateRecords)
	cfg.Solr.MaxUpdateSizeKiB = getEnvInt("RECIDX_SOLR_MAX_UPDATE_SIZE", cfg.Solr.MaxUpdateSizeKiB)
	cfg.Solr.Compress = getEnvBool("RECIDX_SOLR_COMPRESS", cfg.Solr.Compress)
	cfg.Solr.TLSInsecureSkipVerify = getEnvBool("RECIDX_SOLR_TLS_INSECURE_SKIP_VERIFY", cfg.Solr.TLSInsecureSkipVerify)

	cfg.Mongo.URI = getEnvString("RECIDX_MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = getEnvString("RECIDX_MONGO_DATABASE", cfg.Mongo.Database)
	cfg.Mongo.EmptyFilterMatchesAll = getEnvBool("RECIDX_MONGO_EMPTY_FILTER_MATCHES_ALL", cfg.Mongo.EmptyFilterMatchesAll)

	cfg.Logging.Level = getEnvString("RECIDX_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnvString("RECIDX_LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("RECIDX_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.OTLPEndpoint = getEnvString("RECIDX_TRACING_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)

	cfg.Mapping.Directory = getEnvString("RECIDX_MAPPING_DIRECTORY", cfg.Mapping.Directory)
}

// Validate enforces the per-source required fields from §3 and the
// structural constraints of the Solr/Mongo sections.
func Validate(cfg *Config) error {
	var messages []string
	add := func(format string, args ...interface{}) {
		messages = append(messages, fmt.Sprintf(format, args...))
	}

	if cfg.Solr.UpdateURL == "" {
		add("solr.update_url must not be empty")
	}
	if cfg.Solr.MaxUpdateRecords <= 0 {
		add("solr.max_update_records must be positive")
	}
	if cfg.Solr.MaxUpdateSizeKiB <= 0 {
		add("solr.max_update_size must be positive")
	}
	if cfg.Mongo.URI == "" {
		add("mongo.uri must not be empty")
	}

	validLogLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLogLevels[cfg.Logging.Level] {
		add("logging.level %q is not a recognized level", cfg.Logging.Level)
	}

	for id, src := range cfg.DataSources {
		if src.Institution == "" {
			add("datasources.%s.institution must not be empty", id)
		}
		if src.Format == "" {
			add("datasources.%s.format must not be empty", id)
		}
	}

	if len(messages) == 0 {
		return nil
	}
	return apperr.New(apperr.CodeConfig, apperr.SeverityFatal, "config", "Validate",
		fmt.Sprintf("invalid configuration: %s", strings.Join(messages, "; ")))
}

// SolrTimeout parses Solr.Timeout, treating "0" as "no timeout".
func (c *Config) SolrTimeout() time.Duration {
	d, err := time.ParseDuration(c.Solr.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// SolrLongTimeout parses Solr.LongTimeout, used for commit/optimize/delete.
func (c *Config) SolrLongTimeout() time.Duration {
	d, err := time.ParseDuration(c.Solr.LongTimeout)
	if err != nil {
		return time.Hour
	}
	return d
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
