// Package project implements the record projector (C2): turns one raw
// store record into a single index document, per spec.md §4.2.
package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rajaro/RecordManager-Finna/internal/apperr"
	"github.com/rajaro/RecordManager-Finna/internal/document"
	"github.com/rajaro/RecordManager-Finna/internal/mapping"
	"github.com/rajaro/RecordManager-Finna/internal/metadata"
	"github.com/rajaro/RecordManager-Finna/internal/sourceconfig"
	"github.com/rajaro/RecordManager-Finna/internal/store"
	"github.com/rajaro/RecordManager-Finna/internal/storerecord"
)

// HostStore is the subset of store.Store the projector needs for
// host/component linkage and geocoding (spec.md §4.2 steps 3, 5, 13).
type HostStore interface {
	RecordByLinkingID(ctx context.Context, sourceID, linkingID string) (*storerecord.Record, bool, error)
	ComponentsOf(ctx context.Context, sourceID, linkingID string) (metadata.ComponentCursor, error)
	Locations(ctx context.Context, place string) (store.LocationCursor, error)
}

// Options configures cross-source projector behavior (spec.md §3/§6).
type Options struct {
	FormatSets         sourceconfig.FormatSets
	HierarchicalFacets map[string]bool // facet field name -> enabled; "building" gates institution prefixing
	GeocodingField     string
}

// Projector implements spec.md §4.2.
type Projector struct {
	factory     metadata.Factory
	transformer metadata.Transformer
	hostStore   HostStore
	sources     map[string]*sourceconfig.DataSource
	mappings    map[string]map[string]*mapping.Table // source_id -> field -> table
	opts        Options
	logger      *logrus.Logger
	now         func() time.Time
}

// New builds a Projector. mappings is pre-loaded by the caller (driver
// wiring) via internal/mapping's Registry.Load for each configured
// "<field>_mapping".
func New(factory metadata.Factory, transformer metadata.Transformer, hostStore HostStore,
	sources map[string]*sourceconfig.DataSource, mappings map[string]map[string]*mapping.Table,
	opts Options, logger *logrus.Logger) *Projector {
	if transformer == nil {
		transformer = metadata.NoopTransformer{}
	}
	return &Projector{
		factory: factory, transformer: transformer, hostStore: hostStore,
		sources: sources, mappings: mappings, opts: opts, logger: logger,
		now: time.Now,
	}
}

// Result is the projector's output for one record.
type Result struct {
	Doc                    document.Doc
	Skip                   bool
	MergedComponentsCount  int
}

// Project implements spec.md §4.2 steps 1-14.
func (p *Projector) Project(ctx context.Context, rec *storerecord.Record) (Result, error) {
	src, ok := p.sources[rec.SourceID]
	if !ok {
		return Result{}, apperr.New(apperr.CodeConfig, apperr.SeverityFatal, "project", "Project",
			fmt.Sprintf("unknown data source %q", rec.SourceID))
	}

	parser, err := p.factory.NewParser(rec.Format, rec.RawMetadata, rec.OAIID, rec.SourceID)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "NewParser", err)
	}

	// Step 2: component-part policy.
	hiddenComponent := false
	if rec.IsComponentPart() {
		switch src.ComponentParts {
		case sourceconfig.ComponentPartsMergeAll:
			hiddenComponent = true
		case sourceconfig.ComponentPartsMergeNonArticles:
			if !p.opts.FormatSets.IsArticle(rec.Format) {
				hiddenComponent = true
			}
		case sourceconfig.ComponentPartsMergeNonEArt:
			if !p.opts.FormatSets.IsArticle(rec.Format) {
				hiddenComponent = true
			}
			if p.opts.FormatSets.IsArticle(rec.Format) && !p.opts.FormatSets.IsEArticle(rec.Format) {
				hiddenComponent = true
			}
		}
		if hiddenComponent && !src.IndexMergedPartsValue() {
			return Result{Skip: true}, nil
		}
	}

	// Step 3: host-side component gathering.
	componentsDetected := false
	mergedComponents := 0
	if !rec.IsComponentPart() && rec.LinkingID != "" {
		mergeComponents := false
		switch {
		case src.ComponentParts == sourceconfig.ComponentPartsMergeAll:
			mergeComponents = true
		case !p.opts.FormatSets.IsAllJournal(rec.Format):
			mergeComponents = true
		case p.opts.FormatSets.IsJournal(rec.Format) && src.ComponentParts == sourceconfig.ComponentPartsMergeNonEArt:
			mergeComponents = true
		}
		if mergeComponents {
			cursor, err := p.hostStore.ComponentsOf(ctx, rec.SourceID, rec.LinkingID)
			if err != nil {
				return Result{}, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "ComponentsOf", err)
			}
			count, err := parser.MergeComponentParts(ctx, cursor)
			if err != nil {
				return Result{}, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "MergeComponentParts", err)
			}
			if count > 0 {
				componentsDetected = true
			}
			mergedComponents += count
		}
	}

	// Step 4: base projection.
	var doc document.Doc
	if src.SolrTransformation != "" {
		xmlOut, err := parser.ToXML()
		if err != nil {
			return Result{}, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "ToXML", err)
		}
		doc, err = p.transformer.Transform(ctx, xmlOut, map[string]string{
			"source_id": rec.SourceID, "institution": src.Institution,
			"format": rec.Format, "id_prefix": src.IDPrefix,
		})
		if err != nil {
			return Result{}, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "Transform", err)
		}
	} else {
		doc, err = parser.ToMap()
		if err != nil {
			return Result{}, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "ToMap", err)
		}
	}
	if doc == nil {
		doc = document.Doc{}
	}
	doc[document.FieldID] = rec.ID

	// Step 5: host/component linkage.
	if rec.IsComponentPart() {
		if rec.HostRecordID != "" {
			host, found, err := p.hostStore.RecordByLinkingID(ctx, rec.SourceID, rec.HostRecordID)
			if err != nil {
				return Result{}, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "RecordByLinkingID", err)
			}
			if found {
				doc[document.FieldHierarchyParentID] = host.ID
				hostTitle, err := p.titleOf(host)
				if err != nil {
					return Result{}, err
				}
				doc[document.FieldContainerTitle] = hostTitle
				doc[document.FieldHierarchyParentTtl] = hostTitle
			} else {
				if p.logger != nil {
					p.logger.WithFields(logrus.Fields{"component": "project", "record_id": rec.ID, "host_record_id": rec.HostRecordID}).
						Warn("host record not found for component part")
				}
				doc[document.FieldContainerTitle] = parser.ContainerTitle()
			}
		} else {
			doc[document.FieldContainerTitle] = parser.ContainerTitle()
		}
		setIfNonEmpty(doc, document.FieldContainerVolume, parser.ContainerVolume())
		setIfNonEmpty(doc, document.FieldContainerIssue, parser.ContainerIssue())
		setIfNonEmpty(doc, document.FieldContainerStartPage, parser.ContainerStartPage())
		setIfNonEmpty(doc, document.FieldContainerReference, parser.ContainerReference())
	} else {
		prefix := rec.SourceID + "."
		for _, field := range []string{document.FieldHierarchyTopID, document.FieldHierarchyParentID, document.FieldIsHierarchyID} {
			if v, ok := doc[field]; ok {
				if s, ok := v.(string); ok && s != "" {
					doc[field] = prefix + s
				}
			}
		}
		if componentsDetected {
			doc[document.FieldIsHierarchyID] = rec.ID
			doc[document.FieldIsHierarchyTitle] = parser.Title()
		}
	}

	// Step 6: institution default.
	if _, ok := doc[document.FieldInstitution]; !ok {
		doc[document.FieldInstitution] = src.Institution
	}

	// Step 7: mapping application.
	for field, table := range p.mappings[rec.SourceID] {
		p.applyMapping(doc, field, table)
	}

	// Step 8: hierarchical building.
	if p.opts.HierarchicalFacets["building"] {
		code := p.institutionCode(src, doc)
		if code != "" {
			existing := doc.GetList(document.FieldBuilding)
			if len(existing) == 0 {
				doc.SetList(document.FieldBuilding, []string{code})
			} else {
				prefixed := make([]string, len(existing))
				for i, v := range existing {
					prefixed[i] = code + "/" + v
				}
				doc.SetList(document.FieldBuilding, prefixed)
			}
		}
	}

	// Step 9: hierarchical facet expansion.
	for facet, enabled := range p.opts.HierarchicalFacets {
		if !enabled {
			continue
		}
		values := doc.GetList(facet)
		if len(values) == 0 {
			continue
		}
		var expanded []string
		for _, v := range values {
			expanded = append(expanded, expandHierarchy(v)...)
		}
		doc.SetList(facet, expanded)
	}

	// Step 10: allfields backfill.
	if _, ok := doc[document.FieldAllFields]; !ok {
		doc[document.FieldAllFields] = p.buildAllFields(doc)
	}

	// Step 11: timestamps and type.
	doc[document.FieldFirstIndexed] = formatInstant(rec.Created)
	doc[document.FieldLastIndexed] = formatInstant(rec.Date)
	doc[document.FieldRecordType] = rec.Format
	if _, ok := doc[document.FieldFullRecord]; !ok {
		xmlOut, err := parser.ToXML()
		if err != nil {
			return Result{}, apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "ToXML", err)
		}
		doc[document.FieldFullRecord] = xmlOut
	}
	doc.SetList("format", document.DedupList(append(doc.GetList("format"), rec.Format), false))

	// Step 12: hidden flag.
	if hiddenComponent {
		doc[document.FieldHiddenComponentBool] = true
	}

	// Step 13: geocoding.
	if p.opts.GeocodingField != "" {
		if err := p.geocode(ctx, doc); err != nil {
			return Result{}, err
		}
	}

	// Step 14: final normalization.
	for field, v := range doc {
		if lst, ok := v.([]string); ok {
			doc[field] = document.DedupList(lst, false)
		}
	}
	doc.StripEmpty()

	return Result{Doc: doc, MergedComponentsCount: mergedComponents}, nil
}

func (p *Projector) titleOf(rec *storerecord.Record) (string, error) {
	parser, err := p.factory.NewParser(rec.Format, rec.RawMetadata, rec.OAIID, rec.SourceID)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "project", "NewParser(host)", err)
	}
	return parser.Title(), nil
}

func setIfNonEmpty(doc document.Doc, field, value string) {
	if value != "" {
		doc[field] = value
	}
}

// applyMapping implements spec.md §4.2 step 7. A field already holding a
// []string is mapped element-wise; otherwise (present as a scalar, or
// absent) it is mapped as a scalar. An absent field has no type of its
// own, so ##emptyarray only applies when the mapped field was already a
// list.
func (p *Projector) applyMapping(doc document.Doc, field string, table *mapping.Table) {
	v, wasPresent := doc[field]
	if list, ok := v.([]string); ok {
		mapped, present := table.MapList(list, true)
		if present {
			doc.SetList(field, mapped)
		} else {
			delete(doc, field)
		}
		return
	}
	scalar, _ := v.(string)
	mapped, present := table.MapScalar(scalar, wasPresent)
	if present {
		doc[field] = mapped
	} else {
		delete(doc, field)
	}
}

// institutionCode implements spec.md §4.2 step 8's per-policy resolution.
func (p *Projector) institutionCode(src *sourceconfig.DataSource, doc document.Doc) string {
	switch src.InstitutionInBuilding {
	case sourceconfig.InstitutionInBuildingDriver:
		if s, ok := doc[document.FieldInstitution].(string); ok {
			return s
		}
		return ""
	case sourceconfig.InstitutionInBuildingNone:
		return ""
	case sourceconfig.InstitutionInBuildingSource:
		return src.SourceID
	default:
		return src.Institution
	}
}

// expandHierarchy implements spec.md §4.2 step 9 for one value.
func expandHierarchy(value string) []string {
	parts := strings.Split(value, "/")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, fmt.Sprintf("%d/%s", i, strings.Join(parts[:i+1], "/")))
	}
	return out
}

var allFieldsExclude = map[string]struct{}{
	document.FieldFullRecord: {}, "thumbnail": {}, document.FieldID: {}, document.FieldRecordType: {}, "ctrlnum": {},
}

// buildAllFields implements spec.md §4.2 step 10.
func (p *Projector) buildAllFields(doc document.Doc) string {
	var parts []string
	for _, field := range doc.FieldNames() {
		if _, excluded := allFieldsExclude[field]; excluded {
			continue
		}
		switch v := doc[field].(type) {
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		case []string:
			if len(v) > 0 {
				parts = append(parts, strings.Join(v, " "))
			}
		}
	}
	deduped := document.DedupList(parts, true)
	return strings.Join(deduped, " ")
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// geocode implements spec.md §4.2 step 13.
func (p *Projector) geocode(ctx context.Context, doc document.Doc) error {
	if _, ok := doc[p.opts.GeocodingField]; ok && !document.IsEmptyValue(doc[p.opts.GeocodingField]) {
		return nil
	}
	places := doc.GetList("geographic_facet")
	if len(places) == 0 {
		return nil
	}

	var candidates []string
	for _, place := range places {
		candidates = append(candidates, place)
		for _, part := range strings.Split(place, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				candidates = append(candidates, part)
			}
		}
	}

	var results []string
	for _, place := range candidates {
		cur, err := p.hostStore.Locations(ctx, place)
		if err != nil {
			if p.logger != nil {
				p.logger.WithError(err).Warn("geocoding lookup failed, continuing")
			}
			continue
		}
		sawDefinite := false
		for cur.Next(ctx) {
			loc, err := cur.Decode()
			if err != nil {
				break
			}
			results = append(results, loc.LonLat)
			if loc.Importance == 0 {
				sawDefinite = true
				continue
			}
			if sawDefinite {
				break
			}
		}
		cur.Close(ctx)
	}
	if len(results) > 0 {
		doc.SetList(p.opts.GeocodingField, document.DedupList(results, false))
	}
	return nil
}
