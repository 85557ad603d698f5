package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/olivere/elastic/v7"
	log "github.com/sirupsen/logrus"

	"github.com/indexbridge/indexbridge/config"
	"github.com/indexbridge/indexbridge/events"
	"github.com/indexbridge/indexbridge/models"
)

const (
	defaultReadIndex  = "search_read"
	defaultWriteIndex = "search_write"

	opUpdate = "update"
	opDelete = "delete"

	// Batch size used when streaming entities during Reindex/Flush.
	reindexBatchSize = 500
)

// IndexMode selects between the read and write index base names.
type IndexMode string

const (
	ModeRead  IndexMode = "read"
	ModeWrite IndexMode = "write"
)

// ErrInvalidIndexMode is returned for any mode other than ModeRead/ModeWrite.
var ErrInvalidIndexMode = errors.New("invalid index mode")

// dynamicDateFormats is merged into every mapping update so date strings
// in indexed documents are detected consistently across indices.
var dynamicDateFormats = []string{"yyyy-MM-dd HH:mm:ss", "yyyy-MM-dd"}

// ElasticsearchEngine implements Indexer on top of an Elasticsearch client.
// It holds no mutable state across calls: one instance is safe to share.
type ElasticsearchEngine struct {
	client     *elastic.Client
	readIndex  string
	writeIndex string
	dispatcher events.Dispatcher
	host       string
	startTime  time.Time
}

var _ Indexer = (*ElasticsearchEngine)(nil)

// NewElasticsearch creates the engine along with its Elasticsearch client.
func NewElasticsearch(cfg config.ElasticsearchConfig, dispatcher events.Dispatcher) (*ElasticsearchEngine, error) {
	options := []elastic.ClientOptionFunc{
		elastic.SetURL(cfg.Host),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(true),
		elastic.SetHealthcheckInterval(30 * time.Second),
	}

	if cfg.Username != "" && cfg.Password != "" {
		options = append(options, elastic.SetBasicAuth(cfg.Username, cfg.Password))
	}

	client, err := elastic.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return NewElasticsearchWithClient(client, cfg, dispatcher), nil
}

// NewElasticsearchWithClient wraps an existing client handle. Index base
// names from the configuration take precedence over the built-in defaults.
func NewElasticsearchWithClient(client *elastic.Client, cfg config.ElasticsearchConfig, dispatcher events.Dispatcher) *ElasticsearchEngine {
	readIndex := defaultReadIndex
	if cfg.IndexRead != "" {
		readIndex = cfg.IndexRead
	}
	writeIndex := defaultWriteIndex
	if cfg.IndexWrite != "" {
		writeIndex = cfg.IndexWrite
	}
	if dispatcher == nil {
		dispatcher = events.NopDispatcher{}
	}

	engine := &ElasticsearchEngine{
		client:     client,
		readIndex:  readIndex,
		writeIndex: writeIndex,
		dispatcher: dispatcher,
		host:       cfg.Host,
		startTime:  time.Now(),
	}

	log.WithFields(log.Fields{
		"host":        cfg.Host,
		"index_read":  readIndex,
		"index_write": writeIndex,
	}).Info("Elasticsearch engine initialized")

	return engine
}

// IndexName resolves {base}_{suffix} for the given mode.
func (e *ElasticsearchEngine) IndexName(model models.Indexable, mode IndexMode) (string, error) {
	switch mode {
	case ModeRead:
		return fmt.Sprintf("%s_%s", e.readIndex, model.IndexSuffix()), nil
	case ModeWrite:
		return fmt.Sprintf("%s_%s", e.writeIndex, model.IndexSuffix()), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidIndexMode, mode)
	}
}

// BulkUpsert indexes or updates multiple entities using the Bulk API.
// Each entity becomes an update-as-upsert directive so missing documents
// are created instead of erroring.
func (e *ElasticsearchEngine) BulkUpsert(ctx context.Context, entities []models.Searchable) error {
	if len(entities) == 0 {
		return nil
	}

	requests, err := e.upsertRequests(entities)
	if err != nil {
		return err
	}
	return e.doBulk(ctx, opUpdate, requests)
}

// BulkDelete removes multiple entities using the Bulk API, keyed by the
// same search key used for upserts. An empty collection is a no-op.
func (e *ElasticsearchEngine) BulkDelete(ctx context.Context, entities []models.Searchable) error {
	if len(entities) == 0 {
		return nil
	}

	requests, err := e.deleteRequests(entities)
	if err != nil {
		return err
	}
	return e.doBulk(ctx, opDelete, requests)
}

// upsertRequests builds one update-as-upsert directive per entity against
// the write index of its type.
func (e *ElasticsearchEngine) upsertRequests(entities []models.Searchable) ([]elastic.BulkableRequest, error) {
	requests := make([]elastic.BulkableRequest, 0, len(entities))
	for _, entity := range entities {
		index, err := e.IndexName(entity, ModeWrite)
		if err != nil {
			return nil, err
		}
		requests = append(requests, elastic.NewBulkUpdateRequest().
			Index(index).
			Id(entity.SearchKey()).
			Doc(entity.SearchableFields()).
			DocAsUpsert(true))
	}
	return requests, nil
}

// deleteRequests builds one delete directive per entity, keyed by the same
// search key used for upserts.
func (e *ElasticsearchEngine) deleteRequests(entities []models.Searchable) ([]elastic.BulkableRequest, error) {
	requests := make([]elastic.BulkableRequest, 0, len(entities))
	for _, entity := range entities {
		index, err := e.IndexName(entity, ModeWrite)
		if err != nil {
			return nil, err
		}
		requests = append(requests, elastic.NewBulkDeleteRequest().
			Index(index).
			Id(entity.SearchKey()))
	}
	return requests, nil
}

// doBulk executes one bulk request. Transport errors propagate; item-level
// failures are collected and published as a single BulkFailedEvent.
func (e *ElasticsearchEngine) doBulk(ctx context.Context, operation string, requests []elastic.BulkableRequest) error {
	payload := bulkPayload(requests)

	response, err := e.client.Bulk().Add(requests...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to execute bulk %s: %w", operation, err)
	}

	if failures := collectBulkFailures(response); len(failures) > 0 {
		log.WithFields(log.Fields{
			"operation": operation,
			"failed":    len(failures),
		}).Warn("Bulk request reported item failures")
		e.dispatcher.Dispatch(events.NewBulkFailedEvent(operation, failures, payload))
	}

	return nil
}

// bulkPayload renders the request body lines so a failure event can carry
// the exact payload for diagnostic replay.
func bulkPayload(requests []elastic.BulkableRequest) []string {
	var lines []string
	for _, request := range requests {
		source, err := request.Source()
		if err != nil {
			lines = append(lines, fmt.Sprintf("unrenderable request: %v", err))
			continue
		}
		lines = append(lines, source...)
	}
	return lines
}

// collectBulkFailures extracts one failure record per failed directive.
// Every directive kind is inspected, not just updates.
func collectBulkFailures(response *elastic.BulkResponse) []events.BulkFailure {
	if response == nil || !response.Errors {
		return nil
	}

	var failures []events.BulkFailure
	for _, item := range response.Items {
		for action, result := range item {
			if result == nil || result.Error == nil {
				continue
			}
			failures = append(failures, events.BulkFailure{
				Index:   result.Index,
				ID:      result.Id,
				Message: failureMessage(action, result),
			})
		}
	}
	return failures
}

// failureMessage formats "[type] reason" when the engine supplied error
// details, falling back to a pretty-printed dump of the whole item.
func failureMessage(action string, result *elastic.BulkResponseItem) string {
	if result.Error.Type != "" || result.Error.Reason != "" {
		return fmt.Sprintf("[%s] %s", result.Error.Type, result.Error.Reason)
	}
	dump, err := json.MarshalIndent(map[string]*elastic.BulkResponseItem{action: result}, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s directive failed with status %d", action, result.Status)
	}
	return string(dump)
}

// Search translates the query snapshot into a single search request against
// the read index of the given type. When the query carries a callback, the
// assembled request is handed over instead of being executed here.
func (e *ElasticsearchEngine) Search(ctx context.Context, model models.Indexable, query *models.SearchQuery) (*elastic.SearchResult, error) {
	index, err := e.IndexName(model, ModeRead)
	if err != nil {
		return nil, err
	}

	svc := e.client.Search().
		Index(index).
		Query(buildQuery(query)).
		TrackTotalHits(true)

	for _, clause := range query.Sorts {
		svc.SortBy(elastic.NewFieldSort(clause.Field).Order(clause.Ascending))
	}

	if query.Size > 0 {
		svc.From(query.From).Size(query.Size)
	}

	if query.Callback != nil {
		return query.Callback(e.client, query.Query, svc)
	}

	result, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	return result, nil
}

// buildQuery assembles the bool query: free text as a wildcard query-string
// must clause, then one must clause per filter. Filter keys are visited in
// sorted order so request bodies are deterministic.
func buildQuery(query *models.SearchQuery) elastic.Query {
	boolQuery := elastic.NewBoolQuery()

	if query.Query != "" {
		boolQuery.Must(elastic.NewQueryStringQuery("*" + query.Query + "*"))
	}

	fields := make([]string, 0, len(query.Filters))
	for field := range query.Filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := query.Filters[field]
		if items, ok := filterValues(value); ok {
			boolQuery.Must(elastic.NewTermsQuery(field, items...))
		} else {
			boolQuery.Must(elastic.NewMatchPhraseQuery(field, value))
		}
	}

	return boolQuery
}

// filterValues reports whether a filter value is a set of scalars.
func filterValues(value interface{}) ([]interface{}, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// Paginate runs Search over a 1-based page window. The page count uses
// ceiling division so a final partial page is counted.
func (e *ElasticsearchEngine) Paginate(ctx context.Context, model models.Indexable, query *models.SearchQuery, pageSize, page int) (*PagedResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	windowed := *query
	windowed.From = (page - 1) * pageSize
	windowed.Size = pageSize

	result, err := e.Search(ctx, model, &windowed)
	if err != nil {
		return nil, err
	}

	total := e.TotalCount(result)
	return &PagedResult{
		Result:     result,
		TotalHits:  total,
		TotalPages: pageCount(total, pageSize),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func pageCount(total int64, pageSize int) int {
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// ExtractIDs returns the hit document ids preserving relevance order.
func (e *ElasticsearchEngine) ExtractIDs(res *elastic.SearchResult) []string {
	if res == nil || res.Hits == nil {
		return nil
	}
	ids := make([]string, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		ids = append(ids, hit.Id)
	}
	return ids
}

// TotalCount returns the normalized total hit count. Both wire shapes,
// a bare integer and {"value": n}, decode into the same structure at the
// deserialization boundary.
func (e *ElasticsearchEngine) TotalCount(res *elastic.SearchResult) int64 {
	if res == nil || res.Hits == nil || res.Hits.TotalHits == nil {
		return 0
	}
	return res.Hits.TotalHits.Value
}

// MapToEntities hydrates the hit ids through the entity-type collaborator,
// drops any hydrated entity not present in the hit list, and re-orders the
// rest to match relevance order.
func (e *ElasticsearchEngine) MapToEntities(ctx context.Context, query *models.SearchQuery, res *elastic.SearchResult, model models.SearchableType) ([]models.Searchable, error) {
	if e.TotalCount(res) == 0 {
		return []models.Searchable{}, nil
	}

	ids := e.ExtractIDs(res)
	entities, err := model.FindByKeys(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate entities: %w", err)
	}

	position := make(map[string]int, len(ids))
	for i, id := range ids {
		position[id] = i
	}

	ordered := make([]models.Searchable, 0, len(entities))
	for _, entity := range entities {
		if _, ok := position[entity.SearchKey()]; ok {
			ordered = append(ordered, entity)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return position[ordered[i].SearchKey()] < position[ordered[j].SearchKey()]
	})

	return ordered, nil
}

// Reindex streams all entities of a type, in primary-key order, back
// through the bulk upsert path.
func (e *ElasticsearchEngine) Reindex(ctx context.Context, model models.SearchableType) error {
	log.WithField("type", model.IndexSuffix()).Info("Starting reindex")
	return model.EachBatch(ctx, reindexBatchSize, e.BulkUpsert)
}

// Flush streams all entities of a type through the bulk delete path.
func (e *ElasticsearchEngine) Flush(ctx context.Context, model models.SearchableType) error {
	log.WithField("type", model.IndexSuffix()).Info("Starting flush")
	return model.EachBatch(ctx, reindexBatchSize, e.BulkDelete)
}

// PutMapping updates the field mapping of the index resolved for the given
// type and mode, and returns the raw acknowledgement.
func (e *ElasticsearchEngine) PutMapping(ctx context.Context, mode IndexMode, model models.Indexable, mapping map[string]interface{}) (*elastic.PutMappingResponse, error) {
	index, err := e.IndexName(model, mode)
	if err != nil {
		return nil, err
	}

	response, err := e.client.PutMapping().
		Index(index).
		BodyJson(mappingBody(mapping)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to put mapping: %w", err)
	}
	return response, nil
}

// mappingBody normalizes a mapping body. One that already declares
// "properties" is merged with the default dynamic date formats, anything
// else is nested under "properties" alongside them.
func mappingBody(mapping map[string]interface{}) map[string]interface{} {
	body := make(map[string]interface{}, len(mapping)+1)

	if _, ok := mapping["properties"]; ok {
		for key, value := range mapping {
			body[key] = value
		}
		if _, ok := body["dynamic_date_formats"]; !ok {
			body["dynamic_date_formats"] = dynamicDateFormats
		}
		return body
	}

	body["dynamic_date_formats"] = dynamicDateFormats
	body["properties"] = mapping
	return body
}

// Ping checks the health of the search engine and returns basic stats
// covering all read-mode indices.
func (e *ElasticsearchEngine) Ping(ctx context.Context) (*models.PingResponse, error) {
	info, code, err := e.client.Ping(e.host).Do(ctx)
	if err != nil || code != 200 {
		return &models.PingResponse{
			Status: "error",
			Engine: "elasticsearch",
		}, err
	}

	count, err := e.client.Count(e.readIndex + "_*").Do(ctx)
	if err != nil {
		count = 0
	}

	version := ""
	if info != nil {
		version = info.Version.Number
	}

	return &models.PingResponse{
		Status:         "ok",
		Engine:         "elasticsearch",
		Version:        version,
		TotalDocuments: count,
		UptimeSeconds:  int64(time.Since(e.startTime).Seconds()),
	}, nil
}

// Close closes the connection to Elasticsearch.
func (e *ElasticsearchEngine) Close() error {
	e.client.Stop()
	log.Info("Elasticsearch connection closed")
	return nil
}
