package models

// BatchUpsertRequest carries documents of one type for bulk indexing.
type BatchUpsertRequest struct {
	Type      string     `json:"type" binding:"required"`
	Documents []Document `json:"documents"`
}

// BatchDeleteRequest carries document keys of one type for bulk deletion.
type BatchDeleteRequest struct {
	Type string   `json:"type" binding:"required"`
	Keys []string `json:"keys"`
}

// BatchResponse reports the outcome of a bulk write. Partial item failures
// are not reflected here; they are surfaced through the event bus.
type BatchResponse struct {
	Success  bool   `json:"success"`
	Accepted int    `json:"accepted"`
	Index    string `json:"index,omitempty"`
}

// SearchRequest is the HTTP form of a SearchQuery plus paging.
type SearchRequest struct {
	Type     string                 `json:"type" binding:"required"`
	Query    string                 `json:"query"`
	Filters  map[string]interface{} `json:"filters,omitempty"`
	Sorts    []SortClause           `json:"sorts,omitempty"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// SearchResponse returns the ordered document ids for one page. Hydration
// into application records is a library-level concern, not an HTTP one.
type SearchResponse struct {
	IDs         []string `json:"ids"`
	TotalHits   int64    `json:"total_hits"`
	TotalPages  int      `json:"total_pages"`
	Page        int      `json:"page"`
	HitsPerPage int      `json:"hits_per_page"`
	TookMs      int64    `json:"took_ms"`
}

// MappingRequest updates the field mapping of one type's index.
type MappingRequest struct {
	Type    string                 `json:"type" binding:"required"`
	Mode    string                 `json:"mode"`
	Mapping map[string]interface{} `json:"mapping" binding:"required"`
}

// MappingResponse reports the search engine's acknowledgement.
type MappingResponse struct {
	Acknowledged bool   `json:"acknowledged"`
	Index        string `json:"index"`
}

// ReindexRequest streams all entities of a registered type back through
// the bulk indexing path.
type ReindexRequest struct {
	Type string `json:"type" binding:"required"`
}

// ReindexResponse reports completion of a reindex or flush run.
type ReindexResponse struct {
	Success bool   `json:"success"`
	Type    string `json:"type"`
}

// PingResponse represents health check information.
type PingResponse struct {
	Status         string `json:"status"`
	Engine         string `json:"engine"`
	Version        string `json:"version,omitempty"`
	TotalDocuments int64  `json:"total_documents"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
