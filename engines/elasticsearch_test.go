package engines

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexbridge/indexbridge/config"
	"github.com/indexbridge/indexbridge/events"
	"github.com/indexbridge/indexbridge/models"
)

type fakeEntity struct {
	key    string
	fields map[string]interface{}
}

func (f fakeEntity) SearchKey() string                        { return f.key }
func (f fakeEntity) SearchableFields() map[string]interface{} { return f.fields }
func (f fakeEntity) IndexSuffix() string                      { return "orders" }

type fakeType struct {
	entities  []models.Searchable
	err       error
	findCalls int
	lastKeys  []string
}

func (f *fakeType) IndexSuffix() string { return "orders" }

func (f *fakeType) FindByKeys(ctx context.Context, q *models.SearchQuery, keys []string) ([]models.Searchable, error) {
	f.findCalls++
	f.lastKeys = keys
	if f.err != nil {
		return nil, f.err
	}
	return f.entities, nil
}

func (f *fakeType) EachBatch(ctx context.Context, batchSize int, fn func(ctx context.Context, batch []models.Searchable) error) error {
	for start := 0; start < len(f.entities); start += batchSize {
		end := start + batchSize
		if end > len(f.entities) {
			end = len(f.entities)
		}
		if err := fn(ctx, f.entities[start:end]); err != nil {
			return err
		}
	}
	return nil
}

type recordingDispatcher struct {
	dispatched []interface{}
}

func (r *recordingDispatcher) Dispatch(event interface{}) {
	r.dispatched = append(r.dispatched, event)
}

func newTestEngine(dispatcher events.Dispatcher) *ElasticsearchEngine {
	return NewElasticsearchWithClient(nil, config.ElasticsearchConfig{
		IndexRead:  "myapp_read_1",
		IndexWrite: "myapp_write_1",
	}, dispatcher)
}

func searchResult(ids ...string) *elastic.SearchResult {
	hits := make([]*elastic.SearchHit, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, &elastic.SearchHit{Id: id})
	}
	return &elastic.SearchResult{
		Hits: &elastic.SearchHits{
			TotalHits: &elastic.TotalHits{Value: int64(len(ids)), Relation: "eq"},
			Hits:      hits,
		},
	}
}

func TestIndexName(t *testing.T) {
	engine := newTestEngine(nil)

	tests := []struct {
		name    string
		mode    IndexMode
		want    string
		wantErr bool
	}{
		{name: "read mode", mode: ModeRead, want: "myapp_read_1_orders"},
		{name: "write mode", mode: ModeWrite, want: "myapp_write_1_orders"},
		{name: "unknown mode", mode: IndexMode("append"), wantErr: true},
		{name: "empty mode", mode: IndexMode(""), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.IndexName(fakeEntity{}, tt.mode)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidIndexMode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndexNameDefaults(t *testing.T) {
	engine := NewElasticsearchWithClient(nil, config.ElasticsearchConfig{}, nil)

	got, err := engine.IndexName(fakeEntity{}, ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, "search_write_orders", got)

	got, err = engine.IndexName(fakeEntity{}, ModeRead)
	require.NoError(t, err)
	assert.Equal(t, "search_read_orders", got)
}

func TestBulkUpsertEmptyIsNoOp(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	// A nil client guarantees any outbound request would panic.
	engine := newTestEngine(dispatcher)

	require.NoError(t, engine.BulkUpsert(context.Background(), nil))
	require.NoError(t, engine.BulkUpsert(context.Background(), []models.Searchable{}))
	assert.Empty(t, dispatcher.dispatched)
}

func TestBulkDeleteEmptyIsNoOp(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	engine := newTestEngine(dispatcher)

	require.NoError(t, engine.BulkDelete(context.Background(), nil))
	assert.Empty(t, dispatcher.dispatched)
}

func TestUpsertRequests(t *testing.T) {
	engine := newTestEngine(nil)
	entities := []models.Searchable{
		fakeEntity{key: "1", fields: map[string]interface{}{"name": "first"}},
		fakeEntity{key: "2", fields: map[string]interface{}{"name": "second"}},
	}

	requests, err := engine.upsertRequests(entities)
	require.NoError(t, err)
	require.Len(t, requests, 2)

	lines := bulkPayload(requests)
	// Each update directive renders as an action header plus a body.
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_index":"myapp_write_1_orders"`)
	assert.Contains(t, lines[0], `"_id":"1"`)
	assert.Contains(t, lines[1], `"doc_as_upsert":true`)
	assert.Contains(t, lines[2], `"_id":"2"`)
	assert.Contains(t, lines[3], `"doc_as_upsert":true`)
}

func TestDeleteRequests(t *testing.T) {
	engine := newTestEngine(nil)
	entities := []models.Searchable{
		fakeEntity{key: "1"},
		fakeEntity{key: "2"},
	}

	requests, err := engine.deleteRequests(entities)
	require.NoError(t, err)
	require.Len(t, requests, 2)

	lines := bulkPayload(requests)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"delete"`)
	assert.Contains(t, lines[0], `"_index":"myapp_write_1_orders"`)
	assert.Contains(t, lines[1], `"_id":"2"`)
}

func TestCollectBulkFailures(t *testing.T) {
	t.Run("no errors flag", func(t *testing.T) {
		response := &elastic.BulkResponse{
			Errors: false,
			Items: []map[string]*elastic.BulkResponseItem{
				{"update": {Id: "1", Index: "myapp_write_1_orders", Error: &elastic.ErrorDetails{Type: "x", Reason: "y"}}},
			},
		}
		assert.Nil(t, collectBulkFailures(response))
	})

	t.Run("update error", func(t *testing.T) {
		response := &elastic.BulkResponse{
			Errors: true,
			Items: []map[string]*elastic.BulkResponseItem{
				{"update": {Id: "1", Index: "myapp_write_1_orders", Status: 200}},
				{"update": {
					Id:    "2",
					Index: "myapp_write_1_orders",
					Error: &elastic.ErrorDetails{Type: "mapper_parsing_exception", Reason: "foo"},
				}},
			},
		}

		failures := collectBulkFailures(response)
		require.Len(t, failures, 1)
		assert.Equal(t, "myapp_write_1_orders", failures[0].Index)
		assert.Equal(t, "2", failures[0].ID)
		assert.Equal(t, "[mapper_parsing_exception] foo", failures[0].Message)
	})

	t.Run("delete errors are detected too", func(t *testing.T) {
		response := &elastic.BulkResponse{
			Errors: true,
			Items: []map[string]*elastic.BulkResponseItem{
				{"delete": {
					Id:    "7",
					Index: "myapp_write_1_orders",
					Error: &elastic.ErrorDetails{Type: "version_conflict_engine_exception", Reason: "conflict"},
				}},
			},
		}

		failures := collectBulkFailures(response)
		require.Len(t, failures, 1)
		assert.Equal(t, "7", failures[0].ID)
		assert.Equal(t, "[version_conflict_engine_exception] conflict", failures[0].Message)
	})

	t.Run("missing error details fall back to a dump", func(t *testing.T) {
		response := &elastic.BulkResponse{
			Errors: true,
			Items: []map[string]*elastic.BulkResponseItem{
				{"update": {Id: "9", Index: "myapp_write_1_orders", Status: 503, Error: &elastic.ErrorDetails{}}},
			},
		}

		failures := collectBulkFailures(response)
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0].Message, `"_id": "9"`)
	})

	t.Run("nil response", func(t *testing.T) {
		assert.Nil(t, collectBulkFailures(nil))
	})
}

func TestBuildQuery(t *testing.T) {
	querySource := func(t *testing.T, q *models.SearchQuery) string {
		t.Helper()
		source, err := buildQuery(q).Source()
		require.NoError(t, err)
		data, err := json.Marshal(source)
		require.NoError(t, err)
		return string(data)
	}

	t.Run("free text becomes a wildcard query string", func(t *testing.T) {
		body := querySource(t, &models.SearchQuery{Query: "widget"})
		assert.Contains(t, body, `"query_string"`)
		assert.Contains(t, body, `"*widget*"`)
	})

	t.Run("scalar filter becomes a phrase match", func(t *testing.T) {
		body := querySource(t, &models.SearchQuery{
			Filters: map[string]interface{}{"status": "active"},
		})
		assert.Contains(t, body, `"match_phrase"`)
		assert.Contains(t, body, `"status"`)
		assert.NotContains(t, body, `"terms"`)
	})

	t.Run("set filter becomes a terms clause", func(t *testing.T) {
		body := querySource(t, &models.SearchQuery{
			Filters: map[string]interface{}{"tags": []string{"a", "b"}},
		})
		assert.Contains(t, body, `"terms"`)
		assert.NotContains(t, body, `"match_phrase"`)
	})

	t.Run("untyped json slices count as sets", func(t *testing.T) {
		body := querySource(t, &models.SearchQuery{
			Filters: map[string]interface{}{"ids": []interface{}{1, 2, 3}},
		})
		assert.Contains(t, body, `"terms"`)
	})

	t.Run("filters are emitted in sorted key order", func(t *testing.T) {
		body := querySource(t, &models.SearchQuery{
			Filters: map[string]interface{}{"b": "2", "a": "1"},
		})
		assert.Less(t, strings.Index(body, `"a"`), strings.Index(body, `"b"`))
	})
}

func TestTotalCount(t *testing.T) {
	engine := newTestEngine(nil)

	t.Run("nil safety", func(t *testing.T) {
		assert.Equal(t, int64(0), engine.TotalCount(nil))
		assert.Equal(t, int64(0), engine.TotalCount(&elastic.SearchResult{}))
	})

	t.Run("object wire shape", func(t *testing.T) {
		var res elastic.SearchResult
		require.NoError(t, json.Unmarshal([]byte(`{"hits":{"total":{"value":42,"relation":"eq"},"hits":[]}}`), &res))
		assert.Equal(t, int64(42), engine.TotalCount(&res))
	})

	t.Run("bare integer wire shape", func(t *testing.T) {
		var res elastic.SearchResult
		require.NoError(t, json.Unmarshal([]byte(`{"hits":{"total":42,"hits":[]}}`), &res))
		assert.Equal(t, int64(42), engine.TotalCount(&res))
	})
}

func TestExtractIDs(t *testing.T) {
	engine := newTestEngine(nil)

	assert.Nil(t, engine.ExtractIDs(nil))
	assert.Equal(t, []string{"3", "1", "2"}, engine.ExtractIDs(searchResult("3", "1", "2")))
}

func TestMapToEntities(t *testing.T) {
	engine := newTestEngine(nil)
	ctx := context.Background()

	t.Run("zero hits short-circuits without hydration", func(t *testing.T) {
		model := &fakeType{}
		entities, err := engine.MapToEntities(ctx, &models.SearchQuery{}, searchResult(), model)
		require.NoError(t, err)
		assert.Empty(t, entities)
		assert.Zero(t, model.findCalls)
	})

	t.Run("re-orders hydrated entities to hit order", func(t *testing.T) {
		model := &fakeType{entities: []models.Searchable{
			fakeEntity{key: "1"},
			fakeEntity{key: "2"},
			fakeEntity{key: "3"},
		}}

		entities, err := engine.MapToEntities(ctx, &models.SearchQuery{}, searchResult("3", "1", "2"), model)
		require.NoError(t, err)
		require.Len(t, entities, 3)
		assert.Equal(t, "3", entities[0].SearchKey())
		assert.Equal(t, "1", entities[1].SearchKey())
		assert.Equal(t, "2", entities[2].SearchKey())
		assert.Equal(t, []string{"3", "1", "2"}, model.lastKeys)
	})

	t.Run("drops hydrated strays not in the hit list", func(t *testing.T) {
		model := &fakeType{entities: []models.Searchable{
			fakeEntity{key: "9"},
			fakeEntity{key: "2"},
			fakeEntity{key: "1"},
		}}

		entities, err := engine.MapToEntities(ctx, &models.SearchQuery{}, searchResult("1", "2"), model)
		require.NoError(t, err)
		require.Len(t, entities, 2)
		assert.Equal(t, "1", entities[0].SearchKey())
		assert.Equal(t, "2", entities[1].SearchKey())
	})

	t.Run("hydration error propagates", func(t *testing.T) {
		model := &fakeType{err: errors.New("db down")}
		_, err := engine.MapToEntities(ctx, &models.SearchQuery{}, searchResult("1"), model)
		assert.Error(t, err)
	})
}

func TestSearchCallbackBypassesExecution(t *testing.T) {
	client, err := elastic.NewSimpleClient(elastic.SetURL("http://127.0.0.1:1"))
	require.NoError(t, err)

	engine := NewElasticsearchWithClient(client, config.ElasticsearchConfig{
		IndexRead:  "myapp_read_1",
		IndexWrite: "myapp_write_1",
	}, nil)

	canned := searchResult("a", "b")
	var gotQuery string
	query := &models.SearchQuery{
		Query: "widget",
		Callback: func(c *elastic.Client, q string, svc *elastic.SearchService) (*elastic.SearchResult, error) {
			gotQuery = q
			assert.Same(t, client, c)
			assert.NotNil(t, svc)
			return canned, nil
		},
	}

	result, err := engine.Search(context.Background(), fakeEntity{}, query)
	require.NoError(t, err)
	assert.Same(t, canned, result)
	assert.Equal(t, "widget", gotQuery)
}

func TestPaginate(t *testing.T) {
	client, err := elastic.NewSimpleClient(elastic.SetURL("http://127.0.0.1:1"))
	require.NoError(t, err)

	engine := NewElasticsearchWithClient(client, config.ElasticsearchConfig{}, nil)

	canned := &elastic.SearchResult{
		Hits: &elastic.SearchHits{TotalHits: &elastic.TotalHits{Value: 95, Relation: "eq"}},
	}
	query := &models.SearchQuery{
		Callback: func(c *elastic.Client, q string, svc *elastic.SearchService) (*elastic.SearchResult, error) {
			return canned, nil
		},
	}

	page, err := engine.Paginate(context.Background(), fakeEntity{}, query, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(95), page.TotalHits)
	assert.Equal(t, 10, page.TotalPages)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 10, page.PageSize)
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 0, pageCount(0, 10))
	assert.Equal(t, 1, pageCount(1, 10))
	assert.Equal(t, 1, pageCount(10, 10))
	assert.Equal(t, 2, pageCount(11, 10))
	assert.Equal(t, 10, pageCount(95, 10))
}

func TestMappingBody(t *testing.T) {
	t.Run("bare field mapping is nested under properties", func(t *testing.T) {
		body := mappingBody(map[string]interface{}{
			"title": map[string]interface{}{"type": "text"},
		})

		properties, ok := body["properties"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, properties, "title")
		assert.Equal(t, dynamicDateFormats, body["dynamic_date_formats"])
	})

	t.Run("mapping with properties is merged as-is", func(t *testing.T) {
		body := mappingBody(map[string]interface{}{
			"properties": map[string]interface{}{
				"title": map[string]interface{}{"type": "text"},
			},
			"dynamic": "strict",
		})

		assert.Equal(t, "strict", body["dynamic"])
		properties, ok := body["properties"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, properties, "title")
		assert.Equal(t, dynamicDateFormats, body["dynamic_date_formats"])
	})

	t.Run("explicit date formats are preserved", func(t *testing.T) {
		body := mappingBody(map[string]interface{}{
			"properties":           map[string]interface{}{},
			"dynamic_date_formats": []string{"epoch_millis"},
		})
		assert.Equal(t, []string{"epoch_millis"}, body["dynamic_date_formats"])
	})
}

func TestReindexStreamsBatches(t *testing.T) {
	// EachBatch with a failing op must stop and propagate.
	engine := newTestEngine(&recordingDispatcher{})
	model := &fakeType{entities: []models.Searchable{fakeEntity{key: "1"}}}

	err := model.EachBatch(context.Background(), 1, func(ctx context.Context, batch []models.Searchable) error {
		return errors.New("boom")
	})
	assert.Error(t, err)

	// Flushing an empty type touches nothing.
	require.NoError(t, engine.Flush(context.Background(), &fakeType{}))
}
