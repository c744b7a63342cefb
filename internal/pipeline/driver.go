// Package pipeline implements the pipeline driver (C7): orchestrates the
// individual-records pass, the three-phase merged-records pass, and the
// administrative operations, per spec.md §4.7.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/rajaro/RecordManager-Finna/internal/apperr"
	"github.com/rajaro/RecordManager-Finna/internal/buffer"
	"github.com/rajaro/RecordManager-Finna/internal/merge"
	"github.com/rajaro/RecordManager-Finna/internal/perfmeter"
	"github.com/rajaro/RecordManager-Finna/internal/project"
	"github.com/rajaro/RecordManager-Finna/internal/sourceconfig"
	"github.com/rajaro/RecordManager-Finna/internal/store"
	"github.com/rajaro/RecordManager-Finna/internal/telemetry"
	"github.com/rajaro/RecordManager-Finna/internal/transport"
	"github.com/rajaro/RecordManager-Finna/internal/watermark"
)

// Config bounds the driver's batching/aux-collection behavior.
type Config struct {
	Buffer                buffer.Config
	EmptyFilterMatchesAll bool // pins spec.md §9's open question; default false
}

// Driver implements C7.
type Driver struct {
	store      store.Store
	watermarks watermark.Store
	projector  *project.Projector
	merger     *merge.Engine
	transport  *transport.Client
	cfg        Config
	sources    map[string]*sourceconfig.DataSource
	meter      *perfmeter.Meter
	metrics    *telemetry.Metrics
	logger     *logrus.Logger
	clock      func() time.Time
	tracer     oteltrace.Tracer
}

// New builds a Driver.
func New(
	st store.Store,
	watermarks watermark.Store,
	projector *project.Projector,
	merger *merge.Engine,
	transportClient *transport.Client,
	cfg Config,
	sources map[string]*sourceconfig.DataSource,
	meter *perfmeter.Meter,
	metrics *telemetry.Metrics,
	logger *logrus.Logger,
) *Driver {
	return &Driver{
		store: st, watermarks: watermarks, projector: projector, merger: merger,
		transport: transportClient, cfg: cfg, sources: sources,
		meter: meter, metrics: metrics, logger: logger, clock: time.Now,
		tracer: otel.Tracer("recidx-pipeline"),
	}
}

// SetTracer overrides the driver's tracer, e.g. with internal/tracing's
// configured Provider.Tracer(). Unconfigured, spans go to the global
// no-op tracer and cost nothing.
func (d *Driver) SetTracer(tracer oteltrace.Tracer) {
	d.tracer = tracer
}

// resolveSources returns the data sources to operate on, filtered by
// sourceID (spec.md §4.7: "filtered by sourceId when not empty/*"),
// sorted for deterministic iteration order.
func (d *Driver) resolveSources(sourceID string) []*sourceconfig.DataSource {
	var out []*sourceconfig.DataSource
	for id, src := range d.sources {
		if sourceID != "" && sourceID != "*" && sourceID != id {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// resolveFromInstant implements spec.md §4.7 step 1: explicit fromDate
// wins; else the per-source (or global) watermark; else unbounded.
func (d *Driver) resolveFromInstant(ctx context.Context, fromDate *time.Time, watermarkKey string) (*time.Time, error) {
	if fromDate != nil {
		return fromDate, nil
	}
	instant, ok, err := d.watermarks.Read(ctx, watermarkKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "pipeline", "resolveFromInstant", err)
	}
	if !ok {
		return nil, nil
	}
	return &instant, nil
}

func newBuffer(d *Driver) *buffer.Buffer {
	return buffer.New(d.cfg.Buffer, d.transport)
}

// UpdateIndividualRecords implements spec.md §4.7's first entry point.
func (d *Driver) UpdateIndividualRecords(ctx context.Context, fromDate *time.Time, sourceID, singleID string, noCommit bool) error {
	ctx, span := d.tracer.Start(ctx, "pipeline.UpdateIndividualRecords")
	defer span.End()

	sources := d.resolveSources(sourceID)
	buf := newBuffer(d)
	seq := 0
	succeeded := 0
	failed := 0

	for _, src := range sources {
		start := d.clock()
		if err := d.updateOneSource(ctx, src, fromDate, singleID, noCommit, buf, &seq); err != nil {
			failed++
			d.logger.WithError(err).WithField("source_id", src.SourceID).
				Error("individual-records pass failed for source, watermark not advanced")
			continue
		}
		succeeded++
		if d.metrics != nil {
			d.metrics.PassDuration.WithLabelValues("individual").Observe(d.clock().Sub(start).Seconds())
		}
	}

	if buf.EverSent() && !noCommit {
		if err := d.transport.Commit(ctx); err != nil {
			return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "pipeline", "UpdateIndividualRecords", err)
		}
		if err := d.transport.Await(ctx); err != nil {
			return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "pipeline", "UpdateIndividualRecords", err)
		}
	}

	if succeeded == 0 && failed > 0 {
		return apperr.New(apperr.CodeSource, apperr.SeverityFatal, "pipeline", "UpdateIndividualRecords",
			fmt.Sprintf("all %d data source(s) failed", failed))
	}
	return nil
}

func (d *Driver) updateOneSource(ctx context.Context, src *sourceconfig.DataSource, fromDate *time.Time, singleID string, noCommit bool, buf *buffer.Buffer, seq *int) error {
	watermarkKey := watermark.SourceKey(src.SourceID)
	startInstant := d.clock()

	var fromInstant *time.Time
	var err error
	if singleID == "" {
		fromInstant, err = d.resolveFromInstant(ctx, fromDate, watermarkKey)
		if err != nil {
			return err
		}
	}

	filter := store.RecordFilter{SourceID: src.SourceID, SkipUpdateNeeded: true, UpdatedFrom: fromInstant}
	if singleID != "" {
		filter = store.RecordFilter{SingleID: singleID}
	}

	cursor, err := d.store.Records(ctx, filter)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "updateOneSource", err)
	}
	defer cursor.Close(ctx)

	processed, deleted := 0, 0
	for cursor.Next(ctx) {
		rec, err := cursor.Decode()
		if err != nil {
			return apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "updateOneSource", err)
		}
		*seq++

		if rec.Deleted {
			if err := buf.Delete(ctx, rec.Key); err != nil {
				return err
			}
			deleted++
			continue
		}

		result, err := d.projector.Project(ctx, rec)
		if err != nil {
			return err
		}
		if result.Skip {
			continue
		}
		if err := buf.Add(ctx, result.Doc, *seq, noCommit); err != nil {
			return err
		}
		processed++
		if d.meter != nil {
			d.meter.Add(1)
		}
	}
	if err := cursor.Err(); err != nil {
		return apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "updateOneSource", err)
	}

	if err := buf.Flush(ctx); err != nil {
		return err
	}

	if singleID == "" {
		if err := d.watermarks.Write(ctx, watermarkKey, startInstant); err != nil {
			return err
		}
	}

	if d.metrics != nil {
		d.metrics.RecordsProcessed.WithLabelValues("individual", src.SourceID).Add(float64(processed))
		d.metrics.RecordsDeleted.WithLabelValues("individual", src.SourceID).Add(float64(deleted))
	}
	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{"source_id": src.SourceID, "processed": processed, "deleted": deleted}).
			Info("individual-records pass complete for source")
	}
	return nil
}
