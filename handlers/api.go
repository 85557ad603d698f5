package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/indexbridge/indexbridge/engines"
	"github.com/indexbridge/indexbridge/models"
)

// APIHandler handles all API endpoints.
type APIHandler struct {
	engine    engines.Indexer
	registry  *models.Registry
	startTime time.Time
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(engine engines.Indexer, registry *models.Registry, startTime time.Time) *APIHandler {
	return &APIHandler{
		engine:    engine,
		registry:  registry,
		startTime: startTime,
	}
}

// BatchUpsert handles bulk document indexing.
// POST /api/v1/documents/batch
func (h *APIHandler) BatchUpsert(c *gin.Context) {
	var req models.BatchUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithError(err).Warn("Invalid batch upsert request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
		})
		return
	}

	if len(req.Documents) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Bad Request",
			Message: "documents array cannot be empty",
		})
		return
	}

	entities := make([]models.Searchable, 0, len(req.Documents))
	for i, doc := range req.Documents {
		if doc.Key == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "Bad Request",
				Message: "document key is required",
				Code:    i,
			})
			return
		}
		doc.Type = req.Type
		entities = append(entities, doc)
	}

	if err := h.engine.BulkUpsert(c.Request.Context(), entities); err != nil {
		log.WithError(err).Error("Failed to batch upsert documents")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Internal Server Error",
			Message: "Failed to index documents",
		})
		return
	}

	index, _ := h.engine.IndexName(models.TypeRef(req.Type), engines.ModeWrite)
	c.JSON(http.StatusOK, models.BatchResponse{
		Success:  true,
		Accepted: len(entities),
		Index:    index,
	})
}

// BatchDelete handles bulk document deletion.
// POST /api/v1/documents/delete
func (h *APIHandler) BatchDelete(c *gin.Context) {
	var req models.BatchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithError(err).Warn("Invalid batch delete request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
		})
		return
	}

	if len(req.Keys) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Bad Request",
			Message: "keys array cannot be empty",
		})
		return
	}

	entities := make([]models.Searchable, 0, len(req.Keys))
	for _, key := range req.Keys {
		entities = append(entities, models.Document{Key: key, Type: req.Type})
	}

	if err := h.engine.BulkDelete(c.Request.Context(), entities); err != nil {
		log.WithError(err).Error("Failed to batch delete documents")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Internal Server Error",
			Message: "Failed to delete documents",
		})
		return
	}

	index, _ := h.engine.IndexName(models.TypeRef(req.Type), engines.ModeWrite)
	c.JSON(http.StatusOK, models.BatchResponse{
		Success:  true,
		Accepted: len(entities),
		Index:    index,
	})
}

// Search handles paginated search queries, returning ordered document ids.
// POST /api/v1/search
func (h *APIHandler) Search(c *gin.Context) {
	startTime := time.Now()

	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithError(err).Warn("Invalid search request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
		})
		return
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 10
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	query := &models.SearchQuery{
		Query:   req.Query,
		Filters: req.Filters,
		Sorts:   req.Sorts,
	}

	page, err := h.engine.Paginate(c.Request.Context(), models.TypeRef(req.Type), query, req.PageSize, req.Page)
	if err != nil {
		log.WithError(err).Error("Search failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Internal Server Error",
			Message: "Search query failed",
		})
		return
	}

	c.JSON(http.StatusOK, models.SearchResponse{
		IDs:         h.engine.ExtractIDs(page.Result),
		TotalHits:   page.TotalHits,
		TotalPages:  page.TotalPages,
		Page:        page.Page,
		HitsPerPage: page.PageSize,
		TookMs:      time.Since(startTime).Milliseconds(),
	})
}

// PutMapping handles mapping updates for one type's index.
// PUT /api/v1/mapping
func (h *APIHandler) PutMapping(c *gin.Context) {
	var req models.MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithError(err).Warn("Invalid mapping request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
		})
		return
	}

	mode := engines.ModeWrite
	if req.Mode != "" {
		mode = engines.IndexMode(req.Mode)
	}

	ack, err := h.engine.PutMapping(c.Request.Context(), mode, models.TypeRef(req.Type), req.Mapping)
	if err != nil {
		if errors.Is(err, engines.ErrInvalidIndexMode) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "Bad Request",
				Message: err.Error(),
			})
			return
		}
		log.WithError(err).Error("Failed to put mapping")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Internal Server Error",
			Message: "Failed to update mapping",
		})
		return
	}

	index, _ := h.engine.IndexName(models.TypeRef(req.Type), mode)
	c.JSON(http.StatusOK, models.MappingResponse{
		Acknowledged: ack.Acknowledged,
		Index:        index,
	})
}

// Reindex streams all entities of a registered type back into the index.
// POST /api/v1/reindex
func (h *APIHandler) Reindex(c *gin.Context) {
	h.runBatchHook(c, "reindex", h.engine.Reindex)
}

// Flush streams all entities of a registered type out of the index.
// POST /api/v1/flush
func (h *APIHandler) Flush(c *gin.Context) {
	h.runBatchHook(c, "flush", h.engine.Flush)
}

// runBatchHook resolves the request type against the registry and runs the
// given engine operation over its batch-streaming hook.
func (h *APIHandler) runBatchHook(c *gin.Context, name string, op func(ctx context.Context, model models.SearchableType) error) {
	var req models.ReindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithError(err).Warn("Invalid " + name + " request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
		})
		return
	}

	model, ok := h.registry.Lookup(req.Type)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Not Found",
			Message: "unknown searchable type: " + req.Type,
		})
		return
	}

	if err := op(c.Request.Context(), model); err != nil {
		log.WithError(err).WithField("type", req.Type).Error("Failed to " + name)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Internal Server Error",
			Message: "Failed to " + name + " type " + req.Type,
		})
		return
	}

	c.JSON(http.StatusOK, models.ReindexResponse{
		Success: true,
		Type:    req.Type,
	})
}

// Ping handles health checks.
// GET /api/v1/ping
func (h *APIHandler) Ping(c *gin.Context) {
	result, err := h.engine.Ping(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Ping failed")
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "Service Unavailable",
			Message: "Search engine is not available",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Status handles service status checks.
// GET /api/v1/status
func (h *APIHandler) Status(c *gin.Context) {
	result, err := h.engine.Ping(c.Request.Context())
	totalDocs := int64(0)
	if err == nil {
		totalDocs = result.TotalDocuments
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	c.JSON(http.StatusOK, gin.H{
		"service":        "indexbridge",
		"status":         "ok",
		"hostname":       hostname,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"document_total": totalDocs,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
