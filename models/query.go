package models

import "github.com/olivere/elastic/v7"

// SortClause is one (column, direction) pair of an ordered sort sequence.
type SortClause struct {
	Field     string `json:"field"`
	Ascending bool   `json:"ascending"`
}

// SearchCallback is the escape hatch for advanced callers: when set on a
// SearchQuery, the adapter hands over the client, the original free-text
// query and the fully assembled request instead of executing it itself.
type SearchCallback func(client *elastic.Client, query string, svc *elastic.SearchService) (*elastic.SearchResult, error)

// SearchQuery is a snapshot of an application query builder: free text,
// equality/set filters, sort clauses and an optional pagination window.
type SearchQuery struct {
	// Query is the free-text search string. Empty means match-all.
	Query string `json:"query"`

	// Filters maps a column to either a scalar (phrase match) or a slice
	// of scalars (terms match).
	Filters map[string]interface{} `json:"filters,omitempty"`

	// Sorts are applied in order after relevance.
	Sorts []SortClause `json:"sorts,omitempty"`

	// From and Size define the pagination window. Size == 0 leaves the
	// window to the search engine's default.
	From int `json:"from"`
	Size int `json:"size"`

	// Callback, when non-nil, bypasses the adapter's own execution.
	Callback SearchCallback `json:"-"`
}

// Where adds a scalar or set filter and returns the query for chaining.
func (q *SearchQuery) Where(field string, value interface{}) *SearchQuery {
	if q.Filters == nil {
		q.Filters = make(map[string]interface{})
	}
	q.Filters[field] = value
	return q
}

// OrderBy appends a sort clause and returns the query for chaining.
func (q *SearchQuery) OrderBy(field string, ascending bool) *SearchQuery {
	q.Sorts = append(q.Sorts, SortClause{Field: field, Ascending: ascending})
	return q
}
