package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rajaro/RecordManager-Finna/internal/apperr"
	"github.com/rajaro/RecordManager-Finna/internal/buffer"
	"github.com/rajaro/RecordManager-Finna/internal/document"
	"github.com/rajaro/RecordManager-Finna/internal/merge"
	"github.com/rajaro/RecordManager-Finna/internal/sourceconfig"
	"github.com/rajaro/RecordManager-Finna/internal/store"
	"github.com/rajaro/RecordManager-Finna/internal/storerecord"
	"github.com/rajaro/RecordManager-Finna/internal/watermark"
)

// UpdateMergedRecords implements spec.md §4.7's second entry point: the
// dedup-group pass (Phase A), the residual-individuals pass (Phase B, only
// when !delete), and the finalize step (Phase C).
func (d *Driver) UpdateMergedRecords(ctx context.Context, fromDate *time.Time, sourceID, singleID string, noCommit, deleteMode bool) error {
	ctx, span := d.tracer.Start(ctx, "pipeline.UpdateMergedRecords")
	defer span.End()

	sources := d.resolveSources(sourceID)
	buf := newBuffer(d)
	seq := 0
	processedKeys := make(map[string]struct{})
	startInstant := d.clock()

	for _, src := range sources {
		if err := d.mergedPhaseA(ctx, src, fromDate, singleID, noCommit, deleteMode, sourceID, buf, &seq, processedKeys); err != nil {
			return apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "mergedPhaseA", err)
		}
	}

	if !deleteMode {
		for _, src := range sources {
			if err := d.mergedPhaseB(ctx, src, fromDate, singleID, noCommit, buf, &seq); err != nil {
				return apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "mergedPhaseB", err)
			}
		}
	}

	return d.mergedPhaseC(ctx, buf, singleID, noCommit, startInstant)
}

// mergedPhaseA implements spec.md §4.7 Phase A for one data source.
func (d *Driver) mergedPhaseA(ctx context.Context, src *sourceconfig.DataSource, fromDate *time.Time, singleID string, noCommit, deleteMode bool, targetSourceID string, buf *buffer.Buffer, seq *int, processedKeys map[string]struct{}) error {
	var fromInstant *time.Time
	var err error
	if singleID == "" {
		fromInstant, err = d.resolveFromInstant(ctx, fromDate, watermark.GlobalKey)
		if err != nil {
			return err
		}
	}

	filter := store.RecordFilter{
		SourceID:         src.SourceID,
		UpdatedFrom:      fromInstant,
		RequireDedupKey:  true,
		SkipUpdateNeeded: !deleteMode,
	}
	if singleID != "" {
		filter = store.RecordFilter{SingleID: singleID, RequireDedupKey: true}
	}

	lastUpdated, found, err := d.store.LatestUpdated(ctx, "")
	if err != nil {
		return err
	}
	var epoch int64
	if found {
		epoch = lastUpdated.Unix()
	}
	fromDateStr := ""
	if fromDate != nil {
		fromDateStr = fromDate.UTC().Format(time.RFC3339)
	}
	auxName := store.AuxCollectionName(filter.Key(), fromDateStr, epoch)

	exists, err := d.store.DedupAuxExists(ctx, auxName)
	if err != nil {
		return err
	}
	if !exists {
		if err := d.store.BuildDedupAux(ctx, filter, auxName, d.cfg.EmptyFilterMatchesAll); err != nil {
			return apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "BuildDedupAux", err)
		}
	}
	if err := d.store.DropStaleAux(ctx, auxName); err != nil {
		d.logger.WithError(err).Warn("failed to garbage-collect stale auxiliary collections")
	}

	keyCursor, err := d.store.DedupAuxKeys(ctx, auxName)
	if err != nil {
		return err
	}
	defer keyCursor.Close(ctx)

	for keyCursor.Next(ctx) {
		key, _, err := keyCursor.Decode()
		if err != nil {
			return err
		}
		if _, done := processedKeys[key]; done {
			continue
		}
		processedKeys[key] = struct{}{}

		if err := d.processDedupGroup(ctx, key, deleteMode, targetSourceID, buf, seq, noCommit); err != nil {
			return err
		}
	}

	return buf.Flush(ctx)
}

// processDedupGroup implements spec.md §4.7 step 4's per-group logic.
func (d *Driver) processDedupGroup(ctx context.Context, dedupKey string, deleteMode bool, targetSourceID string, buf *buffer.Buffer, seq *int, noCommit bool) error {
	cursor, err := d.store.RecordsByDedupKey(ctx, dedupKey)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	group := merge.NewGroup()
	type liveChild struct {
		rec *storerecord.Record
		doc document.Doc
	}
	var live []liveChild
	deletedCount := 0

	for cursor.Next(ctx) {
		rec, err := cursor.Decode()
		if err != nil {
			return err
		}
		*seq++

		markDeleted := rec.Deleted || (deleteMode && rec.SourceID == targetSourceID)
		if markDeleted {
			if err := buf.Delete(ctx, rec.ID); err != nil {
				return err
			}
			deletedCount++
			continue
		}

		result, err := d.projector.Project(ctx, rec)
		if err != nil {
			return err
		}
		if result.Skip {
			continue
		}
		d.merger.Merge(group, rec.ID, result.Doc)
		live = append(live, liveChild{rec: rec, doc: result.Doc})
	}
	if err := cursor.Err(); err != nil {
		return err
	}

	switch len(live) {
	case 0:
		d.logger.WithField("dedup_key", dedupKey).Warn("dedup group has no live members")
	case 1:
		if err := buf.Delete(ctx, dedupKey); err != nil {
			return err
		}
		if err := buf.Add(ctx, live[0].doc, *seq, noCommit); err != nil {
			return err
		}
		if !deleteMode {
			d.logger.WithFields(logrus.Fields{"dedup_key": dedupKey, "record_id": live[0].rec.ID}).
				Warn("single record with a dedup key")
		}
	default:
		for _, c := range live {
			childDoc := c.doc.Clone()
			childDoc[document.FieldMergedChildBoolean] = true
			if err := buf.Add(ctx, childDoc, *seq, noCommit); err != nil {
				return err
			}
			if c.rec.DedupKey != c.rec.Key {
				if err := buf.Delete(ctx, c.rec.Key); err != nil {
					return err
				}
			}
		}
		d.merger.Finalize(group)
		if group.IsEmpty() {
			if err := buf.Delete(ctx, dedupKey); err != nil {
				return err
			}
		} else {
			group.Doc[document.FieldID] = dedupKey
			group.Doc[document.FieldRecordType] = "merged"
			group.Doc[document.FieldMergedBoolean] = true
			if err := buf.Add(ctx, group.Doc, *seq, noCommit); err != nil {
				return err
			}
		}
	}

	if d.metrics != nil {
		d.metrics.RecordsDeleted.WithLabelValues("merged", targetSourceID).Add(float64(deletedCount))
		d.metrics.RecordsMerged.WithLabelValues(targetSourceID).Add(float64(len(live)))
	}
	return nil
}

// mergedPhaseB implements spec.md §4.7 Phase B for one data source.
func (d *Driver) mergedPhaseB(ctx context.Context, src *sourceconfig.DataSource, fromDate *time.Time, singleID string, noCommit bool, buf *buffer.Buffer, seq *int) error {
	var fromInstant *time.Time
	var err error
	if singleID == "" {
		fromInstant, err = d.resolveFromInstant(ctx, fromDate, watermark.GlobalKey)
		if err != nil {
			return err
		}
	}

	filter := store.RecordFilter{
		SourceID: src.SourceID, UpdatedFrom: fromInstant,
		ExcludeDedupKey: true, SkipUpdateNeeded: true,
	}
	if singleID != "" {
		filter = store.RecordFilter{SingleID: singleID, ExcludeDedupKey: true}
	}

	cursor, err := d.store.Records(ctx, filter)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		rec, err := cursor.Decode()
		if err != nil {
			return err
		}
		*seq++

		if rec.Deleted {
			if err := buf.Delete(ctx, rec.ID); err != nil {
				return err
			}
			if rec.Key != "" {
				hasSibling, err := d.store.AnyLiveRecordWithDedupKey(ctx, rec.Key, rec.ID)
				if err != nil {
					return err
				}
				if !hasSibling {
					if err := buf.Delete(ctx, rec.Key); err != nil {
						return err
					}
				}
			}
			continue
		}

		if rec.Key != "" {
			hasSibling, err := d.store.AnyLiveRecordWithDedupKey(ctx, rec.Key, rec.ID)
			if err != nil {
				return err
			}
			if !hasSibling {
				if err := buf.Delete(ctx, rec.Key); err != nil {
					return err
				}
			}
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
	}
	if err := cursor.Err(); err != nil {
		return err
	}
	return buf.Flush(ctx)
}

// mergedPhaseC implements spec.md §4.7 Phase C.
func (d *Driver) mergedPhaseC(ctx context.Context, buf *buffer.Buffer, singleID string, noCommit bool, startInstant time.Time) error {
	if singleID == "" {
		if err := d.watermarks.Write(ctx, watermark.GlobalKey, startInstant); err != nil {
			return err
		}
	}
	if buf.EverSent() && !noCommit {
		if err := d.transport.Commit(ctx); err != nil {
			return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "pipeline", "mergedPhaseC", err)
		}
	}
	if err := d.transport.Await(ctx); err != nil {
		return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "pipeline", "mergedPhaseC", err)
	}
	return nil
}
