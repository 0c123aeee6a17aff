// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/CivicLedger/services/registry/bst"
	"github.com/AleutianAI/CivicLedger/services/registry/query"
	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// ServiceVersion is the registry service version.
const ServiceVersion = "0.1.0"

// Handlers contains the HTTP handlers for the registry service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// =============================================================================
// Dataset Handlers
// =============================================================================

// HandleHealth handles GET /v1/registry/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Datasets: h.svc.DatasetCount(),
		Version:  ServiceVersion,
	})
}

// HandleReady handles GET /v1/registry/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// HandleCreateDataset handles POST /v1/registry/datasets.
//
// Description:
//
//	Registers a new dataset with the given name and backend.
//
// Request Body:
//
//	CreateDatasetRequest
//
// Response:
//
//	201 Created: DatasetInfo
//	400 Bad Request: Invalid name or backend
//	409 Conflict: Name already registered
//	429 Too Many Requests: Dataset capacity reached
func (h *Handlers) HandleCreateDataset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateDataset")

	var req CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	info, err := h.svc.CreateDataset(c.Request.Context(), req.Name, req.Backend)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "CREATE_FAILED"

		if errors.Is(err, ErrInvalidDatasetName) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_DATASET_NAME"
		} else if errors.Is(err, ErrUnknownBackend) {
			statusCode = http.StatusBadRequest
			errCode = "UNKNOWN_BACKEND"
		} else if errors.Is(err, ErrDatasetExists) {
			statusCode = http.StatusConflict
			errCode = "DATASET_EXISTS"
		} else if errors.Is(err, ErrTooManyDatasets) {
			statusCode = http.StatusTooManyRequests
			errCode = "TOO_MANY_DATASETS"
		}

		logger.Error("Create dataset failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Dataset created", "dataset_id", info.ID, "name", info.Name)
	c.JSON(http.StatusCreated, info)
}

// HandleListDatasets handles GET /v1/registry/datasets.
//
// Response:
//
//	200 OK: ListDatasetsResponse
func (h *Handlers) HandleListDatasets(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListDatasets")

	resp, err := h.svc.ListDatasets(c.Request.Context())
	if err != nil {
		logger.Error("List datasets failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "LIST_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleGetDataset handles GET /v1/registry/datasets/:id.
//
// Response:
//
//	200 OK: DatasetStatsResponse
//	404 Not Found: Unknown or expired dataset
func (h *Handlers) HandleGetDataset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetDataset")

	resp, err := h.svc.GetDataset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDatasetError(c, logger, err, "STATS_FAILED")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleDeleteDataset handles DELETE /v1/registry/datasets/:id.
//
// Response:
//
//	204 No Content: Dataset dropped
//	404 Not Found: Unknown dataset
func (h *Handlers) HandleDeleteDataset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteDataset")

	if err := h.svc.DeleteDataset(c.Request.Context(), c.Param("id")); err != nil {
		respondDatasetError(c, logger, err, "DELETE_FAILED")
		return
	}

	logger.Info("Dataset deleted", "dataset", c.Param("id"))
	c.Status(http.StatusNoContent)
}

// HandleCloneDataset handles POST /v1/registry/datasets/:id/clone.
//
// Description:
//
//	Deep-copies the dataset under a new name. The clone shares no
//	mutable state with the source and is always memory-backed.
//
// Request Body:
//
//	CloneDatasetRequest
//
// Response:
//
//	201 Created: DatasetInfo
//	400 Bad Request: Invalid clone name
//	404 Not Found: Unknown source dataset
//	409 Conflict: Clone name taken
//	429 Too Many Requests: Dataset capacity reached
func (h *Handlers) HandleCloneDataset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCloneDataset")

	var req CloneDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	info, err := h.svc.CloneDataset(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "CLONE_FAILED"

		if errors.Is(err, ErrDatasetNotFound) || errors.Is(err, ErrDatasetExpired) {
			statusCode = http.StatusNotFound
			errCode = "DATASET_NOT_FOUND"
		} else if errors.Is(err, ErrInvalidDatasetName) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_DATASET_NAME"
		} else if errors.Is(err, ErrDatasetExists) {
			statusCode = http.StatusConflict
			errCode = "DATASET_EXISTS"
		} else if errors.Is(err, ErrTooManyDatasets) {
			statusCode = http.StatusTooManyRequests
			errCode = "TOO_MANY_DATASETS"
		}

		logger.Error("Clone dataset failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Dataset cloned", "source", c.Param("id"), "dataset_id", info.ID)
	c.JSON(http.StatusCreated, info)
}

// =============================================================================
// Record Handlers
// =============================================================================

// HandleAppendRecord handles POST /v1/registry/datasets/:id/records.
//
// Description:
//
//	Validates and appends one record. A duplicate key leaves the
//	dataset untouched and reports indexed: false.
//
// Request Body:
//
//	AppendRecordRequest
//
// Response:
//
//	201 Created: AppendRecordResponse
//	400 Bad Request: Validation failure
//	404 Not Found: Unknown dataset
func (h *Handlers) HandleAppendRecord(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAppendRecord")

	var req AppendRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.svc.AppendRecord(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		if errors.Is(err, record.ErrInvalidRecord) {
			logger.Warn("Record rejected", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_RECORD",
			})
			return
		}
		respondDatasetError(c, logger, err, "APPEND_FAILED")
		return
	}

	logger.Info("Record appended",
		"dataset", c.Param("id"),
		"position", resp.Position,
		"indexed", resp.Indexed)
	c.JSON(http.StatusCreated, resp)
}

// HandleBulkLoad handles POST /v1/registry/datasets/:id/records/bulk.
//
// Description:
//
//	Loads a batch of records in order. Per-record failures do not
//	abort the batch; the response reports each outcome.
//
// Request Body:
//
//	BulkLoadRequest
//
// Response:
//
//	200 OK: BulkLoadResponse
//	400 Bad Request: Invalid request body
//	404 Not Found: Unknown dataset
func (h *Handlers) HandleBulkLoad(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBulkLoad")

	var req BulkLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if len(req.Records) == 0 {
		logger.Warn("Empty batch")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Batch must contain at least one record",
			Code:  "EMPTY_BATCH",
		})
		return
	}

	resp, err := h.svc.BulkLoad(c.Request.Context(), c.Param("id"), req.Records)
	if err != nil {
		respondDatasetError(c, logger, err, "BULK_LOAD_FAILED")
		return
	}

	logger.Info("Bulk load finished",
		"dataset", c.Param("id"),
		"indexed", resp.Indexed,
		"skipped", resp.Skipped,
		"failed", resp.Failed)
	c.JSON(http.StatusOK, resp)
}

// HandleLookup handles GET /v1/registry/datasets/:id/records/:cpf.
//
// Description:
//
//	Two-stage lookup: the index resolves the key to a position, the
//	list yields the live record. Absence and logical deletion map to
//	distinct statuses.
//
// Response:
//
//	200 OK: LookupResponse
//	404 Not Found: Unknown dataset or key not in index
//	410 Gone: Record carries a deletion mark
func (h *Handlers) HandleLookup(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLookup")

	resp, err := h.svc.Lookup(c.Request.Context(), c.Param("id"), c.Param("cpf"))
	if err != nil {
		if errors.Is(err, query.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "RECORD_NOT_FOUND",
			})
			return
		}
		if errors.Is(err, query.ErrRecordDeleted) {
			c.JSON(http.StatusGone, ErrorResponse{
				Error: err.Error(),
				Code:  "RECORD_DELETED",
			})
			return
		}
		respondDatasetError(c, logger, err, "LOOKUP_FAILED")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleMarkDeleted handles DELETE /v1/registry/datasets/:id/records/:cpf.
//
// Description:
//
//	Flips the record's deletion mark in the list. The index keeps the
//	key so later lookups report the tombstone. Idempotent.
//
// Response:
//
//	204 No Content: Record marked deleted
//	404 Not Found: Unknown dataset or key not in index
func (h *Handlers) HandleMarkDeleted(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleMarkDeleted")

	err := h.svc.MarkDeleted(c.Request.Context(), c.Param("id"), c.Param("cpf"))
	if err != nil {
		if errors.Is(err, query.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "RECORD_NOT_FOUND",
			})
			return
		}
		respondDatasetError(c, logger, err, "MARK_DELETED_FAILED")
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleRemoveFromIndex handles DELETE /v1/registry/datasets/:id/index/:cpf.
//
// Description:
//
//	Physically removes the key from the tree index; the record stays
//	in the list. Removing an absent key still succeeds.
//
// Response:
//
//	204 No Content: Key removed or already absent
//	404 Not Found: Unknown dataset
func (h *Handlers) HandleRemoveFromIndex(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRemoveFromIndex")

	removed, err := h.svc.RemoveFromIndex(c.Request.Context(), c.Param("id"), c.Param("cpf"))
	if err != nil {
		respondDatasetError(c, logger, err, "INDEX_REMOVE_FAILED")
		return
	}

	logger.Info("Index removal", "dataset", c.Param("id"), "removed", removed)
	c.Status(http.StatusNoContent)
}

// =============================================================================
// View Handlers
// =============================================================================

// HandleTraversal handles GET /v1/registry/datasets/:id/traversals/:order.
//
// Description:
//
//	Walks the tree index in the requested order. Accepts "pre", "in",
//	"post", "breadth" and their long aliases.
//
// Response:
//
//	200 OK: TraversalResponse
//	400 Bad Request: Unknown order
//	404 Not Found: Unknown dataset
func (h *Handlers) HandleTraversal(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTraversal")

	order, err := bst.ParseOrder(c.Param("order"))
	if err != nil {
		logger.Warn("Unknown traversal order", "order", c.Param("order"))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_ORDER",
		})
		return
	}

	resp, err := h.svc.Traverse(c.Request.Context(), c.Param("id"), order)
	if err != nil {
		respondDatasetError(c, logger, err, "TRAVERSAL_FAILED")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleSnapshot handles GET /v1/registry/datasets/:id/snapshot.
//
// Description:
//
//	Returns the sorted view resolved against the live list. Views are
//	cached by dataset version.
//
// Response:
//
//	200 OK: SnapshotResponse
//	404 Not Found: Unknown dataset
func (h *Handlers) HandleSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSnapshot")

	resp, err := h.svc.SortedSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDatasetError(c, logger, err, "SNAPSHOT_FAILED")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

// respondDatasetError maps dataset resolution failures to a response.
// Errors outside the known sentinels fall back to 500 with fallbackCode.
func respondDatasetError(c *gin.Context, logger *slog.Logger, err error, fallbackCode string) {
	statusCode := http.StatusInternalServerError
	errCode := fallbackCode

	if errors.Is(err, ErrDatasetNotFound) {
		statusCode = http.StatusNotFound
		errCode = "DATASET_NOT_FOUND"
	} else if errors.Is(err, ErrDatasetExpired) {
		statusCode = http.StatusNotFound
		errCode = "DATASET_EXPIRED"
	} else if errors.Is(err, ErrServiceClosed) {
		statusCode = http.StatusServiceUnavailable
		errCode = "SERVICE_CLOSED"
	}

	if statusCode == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Warn("Request rejected", "error", err)
	}
	c.JSON(statusCode, ErrorResponse{
		Error: err.Error(),
		Code:  errCode,
	})
}

// getOrCreateRequestID returns the inbound request ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
