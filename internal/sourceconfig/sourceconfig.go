// Package sourceconfig holds per-data-source settings and the format
// classification sets consumed by the record projector and merge engine
// (spec.md §3).
package sourceconfig

import "fmt"

// ComponentPartsPolicy controls how component-part records are handled by
// the record projector (spec.md §4.2 step 2).
type ComponentPartsPolicy string

const (
	ComponentPartsAsIs             ComponentPartsPolicy = "as_is"
	ComponentPartsMergeAll         ComponentPartsPolicy = "merge_all"
	ComponentPartsMergeNonArticles ComponentPartsPolicy = "merge_non_articles"
	ComponentPartsMergeNonEArt     ComponentPartsPolicy = "merge_non_earticles"
)

// InstitutionInBuilding controls which institution code prefixes the
// hierarchical "building" facet (spec.md §4.2 step 8).
type InstitutionInBuilding string

const (
	InstitutionInBuildingDriver InstitutionInBuilding = "driver"
	InstitutionInBuildingNone   InstitutionInBuilding = "none"
	InstitutionInBuildingSource InstitutionInBuilding = "source"
	InstitutionInBuildingUnset  InstitutionInBuilding = ""
)

// DataSource is the settings block for one source_id, per spec.md §3.
type DataSource struct {
	SourceID              string                `yaml:"-"`
	Institution           string                `yaml:"institution"`
	Format                string                `yaml:"format"`
	IDPrefix              string                `yaml:"id_prefix"`
	ComponentParts        ComponentPartsPolicy  `yaml:"component_parts"`
	IndexMergedParts      *bool                 `yaml:"index_merged_parts"`
	SolrTransformation    string                `yaml:"solr_transformation"`
	FieldMappings         map[string]string     `yaml:"field_mappings"` // field -> mapping file path
	InstitutionInBuilding InstitutionInBuilding `yaml:"institution_in_building"`
}

// Normalize fills in defaults per spec.md §3 and returns a configuration
// error if a required field is missing.
func (d *DataSource) Normalize() error {
	if d.Institution == "" {
		return fmt.Errorf("data source %q: institution is required", d.SourceID)
	}
	if d.Format == "" {
		return fmt.Errorf("data source %q: format is required", d.SourceID)
	}
	if d.IDPrefix == "" {
		d.IDPrefix = d.SourceID
	}
	if d.ComponentParts == "" {
		d.ComponentParts = ComponentPartsAsIs
	}
	if d.IndexMergedParts == nil {
		t := true
		d.IndexMergedParts = &t
	}
	return nil
}

// IndexMergedPartsValue returns the resolved bool, defaulting to true.
func (d *DataSource) IndexMergedPartsValue() bool {
	if d.IndexMergedParts == nil {
		return true
	}
	return *d.IndexMergedParts
}

// FormatSets carries the journal/article format classification sets from
// spec.md §3, with their unions precomputed.
type FormatSets struct {
	JournalFormats  []string `yaml:"journal_formats"`
	EJournalFormats []string `yaml:"ejournal_formats"`
	ArticleFormats  []string `yaml:"article_formats"`
	EArticleFormats []string `yaml:"earticle_formats"`

	journalSet     map[string]struct{}
	eJournalSet    map[string]struct{}
	articleSet     map[string]struct{}
	eArticleSet    map[string]struct{}
	allJournalSet  map[string]struct{}
	allArticleSet  map[string]struct{}
	built          bool
}

// DefaultFormatSets matches the defaults implied by spec.md §3/§8.
func DefaultFormatSets() FormatSets {
	return FormatSets{
		JournalFormats:  []string{"Journal"},
		EJournalFormats: []string{"eJournal"},
		ArticleFormats:  []string{"Article"},
		EArticleFormats: []string{"eArticle"},
	}
}

func toSet(values []string) map[string]struct{} {
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Build precomputes lookup sets and unions; idempotent.
func (f *FormatSets) Build() {
	if f.built {
		return
	}
	f.journalSet = toSet(f.JournalFormats)
	f.eJournalSet = toSet(f.EJournalFormats)
	f.articleSet = toSet(f.ArticleFormats)
	f.eArticleSet = toSet(f.EArticleFormats)

	f.allJournalSet = make(map[string]struct{}, len(f.journalSet)+len(f.eJournalSet))
	for k := range f.journalSet {
		f.allJournalSet[k] = struct{}{}
	}
	for k := range f.eJournalSet {
		f.allJournalSet[k] = struct{}{}
	}

	f.allArticleSet = make(map[string]struct{}, len(f.articleSet)+len(f.eArticleSet))
	for k := range f.articleSet {
		f.allArticleSet[k] = struct{}{}
	}
	for k := range f.eArticleSet {
		f.allArticleSet[k] = struct{}{}
	}
	f.built = true
}

func (f *FormatSets) IsJournal(format string) bool    { f.Build(); _, ok := f.journalSet[format]; return ok }
func (f *FormatSets) IsEJournal(format string) bool   { f.Build(); _, ok := f.eJournalSet[format]; return ok }
func (f *FormatSets) IsArticle(format string) bool    { f.Build(); _, ok := f.articleSet[format]; return ok }
func (f *FormatSets) IsEArticle(format string) bool   { f.Build(); _, ok := f.eArticleSet[format]; return ok }
func (f *FormatSets) IsAllJournal(format string) bool { f.Build(); _, ok := f.allJournalSet[format]; return ok }
func (f *FormatSets) IsAllArticle(format string) bool { f.Build(); _, ok := f.allArticleSet[format]; return ok }

// DefaultMergedFields is the ordered multiplicity-field list from spec.md §3.
var DefaultMergedFields = []string{
	"institution", "collection", "building", "language", "physical",
	"publisher", "publishDate", "contents", "url", "ctrlnum", "author2",
	"author_additional", "title_alt", "title_old", "title_new", "dateSpan",
	"series", "series2", "topic", "genre", "geographic", "era", "long_lat",
}

// CheckedFields is the first-writer-wins field set from spec.md §4.3.
var CheckedFields = map[string]struct{}{
	"title_auth":  {},
	"title":       {},
	"title_short": {},
	"title_full":  {},
	"title_sort":  {},
	"author":      {},
}
