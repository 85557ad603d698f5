package engines

import (
	"context"

	"github.com/olivere/elastic/v7"

	"github.com/indexbridge/indexbridge/models"
)

// Indexer defines the search-engine adapter surface exposed to the model
// layer and to the HTTP handlers.
type Indexer interface {
	// BulkUpsert indexes or updates multiple entities in a single bulk
	// request. An empty collection is a no-op. Partial item failures are
	// reported through the event dispatcher, never as an error.
	BulkUpsert(ctx context.Context, entities []models.Searchable) error

	// BulkDelete removes multiple entities in a single bulk request,
	// keyed by each entity's search key. Same failure semantics as
	// BulkUpsert.
	BulkDelete(ctx context.Context, entities []models.Searchable) error

	// Search translates the query snapshot into one search request
	// against the read index of the given type.
	Search(ctx context.Context, model models.Indexable, query *models.SearchQuery) (*elastic.SearchResult, error)

	// Paginate runs Search over a 1-based page window and computes the
	// total page count.
	Paginate(ctx context.Context, model models.Indexable, query *models.SearchQuery, pageSize, page int) (*PagedResult, error)

	// ExtractIDs returns the hit document ids in relevance order.
	ExtractIDs(res *elastic.SearchResult) []string

	// TotalCount returns the normalized total hit count.
	TotalCount(res *elastic.SearchResult) int64

	// MapToEntities hydrates the hit ids through the entity-type
	// collaborator and re-orders the result to match relevance order.
	MapToEntities(ctx context.Context, query *models.SearchQuery, res *elastic.SearchResult, model models.SearchableType) ([]models.Searchable, error)

	// Reindex streams all entities of a type back through BulkUpsert.
	Reindex(ctx context.Context, model models.SearchableType) error

	// Flush streams all entities of a type through BulkDelete.
	Flush(ctx context.Context, model models.SearchableType) error

	// PutMapping updates the field mapping of the index resolved for
	// (model, mode) and returns the raw acknowledgement.
	PutMapping(ctx context.Context, mode IndexMode, model models.Indexable, mapping map[string]interface{}) (*elastic.PutMappingResponse, error)

	// IndexName resolves {base}_{suffix} for the given mode.
	IndexName(model models.Indexable, mode IndexMode) (string, error)

	// Ping checks the health of the search engine.
	Ping(ctx context.Context) (*models.PingResponse, error)

	// Close releases the connection to the search engine.
	Close() error
}

// PagedResult is one page of search results plus pagination totals.
type PagedResult struct {
	Result     *elastic.SearchResult
	TotalHits  int64
	TotalPages int
	Page       int
	PageSize   int
}
