package models

// Document is a generic Searchable used by the HTTP API, where records
// arrive as untyped key/field pairs rather than application structs.
type Document struct {
	Key    string                 `json:"key"`
	Fields map[string]interface{} `json:"fields"`
	Type   string                 `json:"-"`
}

// SearchKey implements Searchable.
func (d Document) SearchKey() string { return d.Key }

// SearchableFields implements Searchable.
func (d Document) SearchableFields() map[string]interface{} { return d.Fields }

// IndexSuffix implements Indexable.
func (d Document) IndexSuffix() string { return d.Type }

// TypeRef is a bare Indexable for operations that only need an index
// suffix (search, mapping changes) and no model-layer hooks.
type TypeRef string

// IndexSuffix implements Indexable.
func (t TypeRef) IndexSuffix() string { return string(t) }
