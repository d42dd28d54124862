package entities

// Document is a record held by the document store. Fields is the decoded body;
// the store never interprets it beyond the configured index field.
//
// Go Learning Note — map[string]any:
// Documents in this system are schemaless, so the body is a map of arbitrary
// JSON-compatible values. Code that needs a typed view (the location field, the
// index key) extracts it once at the boundary instead of passing the map around
// and type-asserting everywhere.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// NewDocument creates a document with a non-nil field map.
func NewDocument(id string, fields map[string]any) *Document {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Document{ID: id, Fields: fields}
}

// StringField returns the named field when it holds a string.
func (d *Document) StringField(name string) (string, bool) {
	if d == nil || d.Fields == nil {
		return "", false
	}
	s, ok := d.Fields[name].(string)
	return s, ok
}

// Clone returns a deep copy of the document. Nested maps and slices (decoded
// JSON objects and arrays) are copied too, so stores can hand documents out
// without sharing state with callers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{ID: d.ID, Fields: cloneFields(d.Fields)}
}

func cloneFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// RankedResult is a search hit annotated with its great-circle distance from
// the query center.
type RankedResult struct {
	Document       *Document `json:"document"`
	DistanceMeters float64   `json:"distance_meters"`
}

// SearchResult is the answer to a radius search.
type SearchResult struct {
	Events       []RankedResult `json:"events"`
	TotalEvents  int            `json:"total_events"`
	RadiusMeters float64        `json:"radius_meters"`
	Center       Location       `json:"center"`
}
