package models

import "context"

// Indexable is anything that resolves to a search index suffix. The full
// index name is {base}_{suffix}, where base depends on read/write mode.
type Indexable interface {
	// IndexSuffix returns the type-specific part of the index name,
	// e.g. "orders" for an index named "search_write_orders".
	IndexSuffix() string
}

// Searchable is a single application record that can be indexed.
// The adapter never owns the record lifecycle; it only reads from it.
type Searchable interface {
	Indexable

	// SearchKey returns the stable identifier used as the search-engine
	// document id for both upserts and deletes.
	SearchKey() string

	// SearchableFields returns the serializable attribute map that forms
	// the indexed document body.
	SearchableFields() map[string]interface{}
}

// SearchableType is the entity-type collaborator: the hook back into the
// application's model layer for hydrating and streaming records of one type.
type SearchableType interface {
	Indexable

	// FindByKeys hydrates the entities for exactly the given document ids.
	// Implementations may return them in any order and may return extra
	// rows; the adapter filters and re-orders.
	FindByKeys(ctx context.Context, query *SearchQuery, keys []string) ([]Searchable, error)

	// EachBatch streams all entities of this type in primary-key order,
	// invoking fn once per batch of at most batchSize entities. A non-nil
	// error from fn stops the iteration and is returned as-is.
	EachBatch(ctx context.Context, batchSize int, fn func(ctx context.Context, batch []Searchable) error) error
}
