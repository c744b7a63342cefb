// Package metadata defines the format-specific metadata parser contract.
// Concrete format parsers (MARC, Dublin Core, etc.) are out of scope per
// spec.md §1; this package defines the seam the record projector (C2)
// depends on, plus a generic pass-through implementation so the pipeline
// is runnable end to end without a real bibliographic parser.
package metadata

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/rajaro/RecordManager-Finna/internal/document"
)

// ComponentCursor enumerates a host record's component-part siblings; it
// is supplied by internal/store.
type ComponentCursor interface {
	Next(ctx context.Context) bool
	Decode() (RawComponent, error)
	Close(ctx context.Context) error
}

// RawComponent is the minimal shape a format parser needs from a sibling
// component-part record to fold it into a host's projection.
type RawComponent struct {
	ID       string
	Metadata []byte
}

// Parser produces an index document and auxiliary fields from one record's
// raw metadata payload. Implementations are per-format; spec.md §4.2 step 1.
type Parser interface {
	// ToMap renders the record's native field projection.
	ToMap() (document.Doc, error)
	// ToXML renders the record's metadata as XML, used both as the
	// fullrecord fallback and as XSLT transformer input.
	ToXML() (string, error)
	// MergeComponentParts folds component-part siblings into the host
	// projection (spec.md §4.2 step 3), returning the count merged.
	MergeComponentParts(ctx context.Context, cursor ComponentCursor) (int, error)
	// ContainerTitle/Volume/Issue/StartPage/Reference back step 5's
	// container_* fields for the record's own metadata.
	ContainerTitle() string
	ContainerVolume() string
	ContainerIssue() string
	ContainerStartPage() string
	ContainerReference() string
	// Title is used for hierarchy_parent_title / is_hierarchy_title.
	Title() string
}

// Factory constructs a Parser for (format, raw payload, oai_id, source_id).
type Factory interface {
	NewParser(format string, raw []byte, oaiID, sourceID string) (Parser, error)
}

// Transformer applies an optional XSLT post-projection (spec.md §4.2 step
// 4). No pack example carries a Go XSLT binding, so the default
// implementation is a no-op passthrough; this interface is the documented
// extension seam for wiring a real engine.
type Transformer interface {
	Transform(ctx context.Context, xmlIn string, params map[string]string) (document.Doc, error)
}

// NoopTransformer ignores its input and returns an empty document. The
// projector uses it when it is given a nil Transformer.
type NoopTransformer struct{}

func (NoopTransformer) Transform(ctx context.Context, xmlIn string, params map[string]string) (document.Doc, error) {
	return document.Doc{}, nil
}

// genericRecord is a minimal XML envelope used by the generic parser below.
type genericRecord struct {
	XMLName xml.Name          `xml:"record"`
	Fields  []genericField    `xml:"field"`
}

type genericField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// GenericParser treats the raw payload as already-tagged "name=value"
// lines (one per field, repeatable for multi-valued fields) and renders a
// trivial XML form for fullrecord/XSLT input. It exists purely so the
// pipeline can be exercised without a real bibliographic format parser.
type GenericParser struct {
	sourceID string
	oaiID    string
	fields   map[string][]string
	order    []string
}

// GenericFactory builds GenericParser instances regardless of format.
type GenericFactory struct{}

func (GenericFactory) NewParser(format string, raw []byte, oaiID, sourceID string) (Parser, error) {
	p := &GenericParser{sourceID: sourceID, oaiID: oaiID, fields: make(map[string][]string)}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if _, ok := p.fields[name]; !ok {
			p.order = append(p.order, name)
		}
		p.fields[name] = append(p.fields[name], value)
	}
	return p, nil
}

func (p *GenericParser) ToMap() (document.Doc, error) {
	doc := make(document.Doc, len(p.fields))
	for _, name := range p.order {
		values := p.fields[name]
		if len(values) == 1 {
			doc[name] = values[0]
		} else {
			doc[name] = append([]string(nil), values...)
		}
	}
	return doc, nil
}

func (p *GenericParser) ToXML() (string, error) {
	rec := genericRecord{}
	for _, name := range p.order {
		for _, v := range p.fields[name] {
			rec.Fields = append(rec.Fields, genericField{Name: name, Value: v})
		}
	}
	out, err := xml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("generic parser: marshal xml: %w", err)
	}
	return string(out), nil
}

func (p *GenericParser) MergeComponentParts(ctx context.Context, cursor ComponentCursor) (int, error) {
	count := 0
	for cursor.Next(ctx) {
		comp, err := cursor.Decode()
		if err != nil {
			return count, err
		}
		contents := p.fields["contents"]
		contents = append(contents, strings.TrimSpace(string(comp.Metadata)))
		if _, ok := p.fields["contents"]; !ok {
			p.order = append(p.order, "contents")
		}
		p.fields["contents"] = contents
		count++
	}
	return count, cursor.Close(ctx)
}

func (p *GenericParser) field1(name string) string {
	if v, ok := p.fields[name]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

func (p *GenericParser) ContainerTitle() string     { return p.field1("container_title") }
func (p *GenericParser) ContainerVolume() string    { return p.field1("container_volume") }
func (p *GenericParser) ContainerIssue() string     { return p.field1("container_issue") }
func (p *GenericParser) ContainerStartPage() string { return p.field1("container_start_page") }
func (p *GenericParser) ContainerReference() string { return p.field1("container_reference") }
func (p *GenericParser) Title() string              { return p.field1("title") }
