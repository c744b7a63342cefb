// Package app wires the pipeline's components together from a loaded
// configuration, modeled on the teacher's internal/app.New/initializeComponents
// sequencing (config -> logger -> storage -> processing -> transport).
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rajaro/RecordManager-Finna/internal/buffer"
	"github.com/rajaro/RecordManager-Finna/internal/config"
	"github.com/rajaro/RecordManager-Finna/internal/mapping"
	"github.com/rajaro/RecordManager-Finna/internal/merge"
	"github.com/rajaro/RecordManager-Finna/internal/metadata"
	"github.com/rajaro/RecordManager-Finna/internal/perfmeter"
	"github.com/rajaro/RecordManager-Finna/internal/pipeline"
	"github.com/rajaro/RecordManager-Finna/internal/project"
	"github.com/rajaro/RecordManager-Finna/internal/sourceconfig"
	"github.com/rajaro/RecordManager-Finna/internal/store"
	"github.com/rajaro/RecordManager-Finna/internal/telemetry"
	"github.com/rajaro/RecordManager-Finna/internal/tracing"
	"github.com/rajaro/RecordManager-Finna/internal/transport"
	"github.com/rajaro/RecordManager-Finna/internal/watermark"
)

// App bundles every initialized component the CLI entry points drive.
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Driver   *pipeline.Driver
	Registry *prometheus.Registry

	mongoClient *mongo.Client
	mappings    *mapping.Registry
	tracing     *tracing.Provider
}

// New loads configFile, connects to Mongo, and wires the full pipeline.
func New(ctx context.Context, configFile string) (*App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("app: connect mongo: %w", err)
	}
	db := client.Database(cfg.Mongo.Database)

	recordStore := store.NewMongoStore(db)
	watermarkStore := watermark.NewMongoStore(db)

	mappingRegistry := mapping.NewRegistry(logger)
	mappings, err := loadMappings(mappingRegistry, cfg)
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	if cfg.Solr.WatchMappingFiles {
		if err := mappingRegistry.Watch(); err != nil {
			logger.WithError(err).Warn("mapping: hot-reload watcher failed to start, continuing without it")
		}
	}

	formatSets := sourceconfig.DefaultFormatSets()
	formatSets.JournalFormats = pickOrDefault(cfg.Solr.JournalFormats, formatSets.JournalFormats)
	formatSets.EJournalFormats = pickOrDefault(cfg.Solr.EJournalFormats, formatSets.EJournalFormats)
	formatSets.ArticleFormats = pickOrDefault(cfg.Solr.ArticleFormats, formatSets.ArticleFormats)
	formatSets.EArticleFormats = pickOrDefault(cfg.Solr.EArticleFormats, formatSets.EArticleFormats)
	formatSets.Build()

	hierarchicalFacets := make(map[string]bool, len(cfg.Solr.HierarchicalFacets))
	for _, f := range cfg.Solr.HierarchicalFacets {
		hierarchicalFacets[f] = true
	}

	projector := project.New(
		metadata.GenericFactory{}, metadata.NoopTransformer{}, recordStore,
		cfg.DataSources, mappings,
		project.Options{FormatSets: formatSets, HierarchicalFacets: hierarchicalFacets, GeocodingField: cfg.Geocoding.Field},
		logger,
	)

	mergedFields := cfg.Solr.MergedFields
	if len(mergedFields) == 0 {
		mergedFields = sourceconfig.DefaultMergedFields
	}
	merger := merge.New(mergedFields)

	transportClient := transport.New(transport.Config{
		UpdateURL:             cfg.Solr.UpdateURL,
		Username:              cfg.Solr.Username,
		Password:              cfg.Solr.Password,
		Timeout:               cfg.SolrTimeout(),
		LongTimeout:           cfg.SolrLongTimeout(),
		Background:            cfg.Solr.BackgroundUpdate,
		Compress:              cfg.Solr.Compress,
		TLSInsecureSkipVerify: cfg.Solr.TLSInsecureSkipVerify,
		UserAgent:             "RecordManager-Finna",
	}, logger)

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	meter := perfmeter.New(30 * time.Second)

	driverCfg := pipeline.Config{
		Buffer: buffer.Config{
			MaxUpdateRecords: cfg.Solr.MaxUpdateRecords,
			MaxUpdateSize:    cfg.Solr.MaxUpdateSizeKiB * 1024,
			CommitInterval:   cfg.Solr.MaxCommitInterval,
		},
		EmptyFilterMatchesAll: cfg.Mongo.EmptyFilterMatchesAll,
	}

	driver := pipeline.New(recordStore, watermarkStore, projector, merger, transportClient,
		driverCfg, cfg.DataSources, meter, metrics, logger)

	tracerProvider, err := tracing.New(ctx, tracing.Config{Enabled: cfg.Tracing.Enabled, OTLPEndpoint: cfg.Tracing.OTLPEndpoint}, logger)
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	driver.SetTracer(tracerProvider.Tracer())

	return &App{Config: cfg, Logger: logger, Driver: driver, Registry: registry, mongoClient: client, mappings: mappingRegistry, tracing: tracerProvider}, nil
}

// Close releases the Mongo connection and stops the mapping hot-reload
// watcher and tracing exporter, if either was started.
func (a *App) Close(ctx context.Context) error {
	if a.mappings != nil {
		a.mappings.Close()
	}
	if a.tracing != nil {
		a.tracing.Shutdown(ctx)
	}
	if a.mongoClient == nil {
		return nil
	}
	return a.mongoClient.Disconnect(ctx)
}

// AdminServer builds the /healthz and /metrics HTTP surface (supplemental,
// ambient; see SPEC_FULL.md's admin/observability section).
func (a *App) AdminServer(addr string) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: r}
}

func loadMappings(registry *mapping.Registry, cfg *config.Config) (map[string]map[string]*mapping.Table, error) {
	out := make(map[string]map[string]*mapping.Table, len(cfg.DataSources))
	for sourceID, src := range cfg.DataSources {
		fieldTables := make(map[string]*mapping.Table, len(src.FieldMappings))
		for field, path := range src.FieldMappings {
			table, err := registry.Load(path)
			if err != nil {
				return nil, fmt.Errorf("app: load mapping %q for source %q: %w", path, sourceID, err)
			}
			fieldTables[field] = table
		}
		out[sourceID] = fieldTables
	}
	return out, nil
}

func pickOrDefault(configured, fallback []string) []string {
	if len(configured) == 0 {
		return fallback
	}
	return configured
}
