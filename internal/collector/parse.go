package collector

import (
	"bytes"
	"strings"

	"github.com/sells-group/grants-cli/internal/fetcher"
)

// RawRecord maps an element name to its values in document order. Fields
// that repeat (e.g. CFDANumbers) keep every value.
type RawRecord map[string][]string

// First returns the first value of field, or "" when absent.
func (r RawRecord) First(field string) string {
	if vals := r[field]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// ID returns the record's upstream OpportunityID.
func (r RawRecord) ID() string {
	return strings.TrimSpace(r.First("OpportunityID"))
}

// shape locates the opportunity elements for one known document layout.
type shape struct {
	name    string
	root    string
	records func(root *fetcher.XMLNode) []*fetcher.XMLNode
}

func childrenNamed(names ...string) func(*fetcher.XMLNode) []*fetcher.XMLNode {
	return func(root *fetcher.XMLNode) []*fetcher.XMLNode {
		return root.ChildrenNamed(names...)
	}
}

// shapes are tried in order; the first whose root element matches wins.
var shapes = []shape{
	{name: "opportunities", root: "Opportunities", records: childrenNamed("OpportunityDetail")},
	{name: "single", root: "OpportunityDetail", records: func(root *fetcher.XMLNode) []*fetcher.XMLNode {
		return []*fetcher.XMLNode{root}
	}},
	{name: "grants", root: "grants", records: childrenNamed("grant")},
	{name: "grants-v2", root: "Grants", records: childrenNamed("OpportunitySynopsisDetail_1_0", "OpportunityForecastDetail_1_0")},
}

// ParseResult is the outcome of parsing one extract document.
type ParseResult struct {
	// Shape names the layout that matched, or "" when none did.
	Shape   string
	Records []RawRecord
	// Dropped counts records discarded for lacking an OpportunityID.
	Dropped int
}

// Parse reads a decompressed extract. A document that is not well-formed XML
// is an ErrParseFailure; an unrecognized root yields no records.
func Parse(data []byte) (*ParseResult, error) {
	root, err := fetcher.ParseXMLTree(bytes.NewReader(data))
	if err != nil {
		return nil, newKindError(ErrParseFailure, err)
	}

	res := &ParseResult{}
	for _, s := range shapes {
		if root.Name != s.root {
			continue
		}
		res.Shape = s.name
		for _, node := range s.records(root) {
			rec := toRawRecord(node)
			if rec.ID() == "" {
				res.Dropped++
				continue
			}
			res.Records = append(res.Records, rec)
		}
		break
	}
	return res, nil
}

func toRawRecord(node *fetcher.XMLNode) RawRecord {
	rec := make(RawRecord, len(node.Children))
	for _, c := range node.Children {
		rec[c.Name] = append(rec[c.Name], c.Text)
	}
	return rec
}
