package ingestion

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	httperr "github.com/weir-lab/project-weir/internal/core/errors"
	"github.com/weir-lab/project-weir/internal/core/event"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgNotAccepting   = "Engine is shutting down"
)

// ingestRequest is the inbound wire shape. partition_key is optional: when
// absent the adapter derives it from the configured payload field, falling
// back to the global sentinel.
type ingestRequest struct {
	EventType    string                 `json:"event_type"`
	Payload      map[string]interface{} `json:"payload"`
	PartitionKey string                 `json:"partition_key"`
}

// ingestionError carries the structured HTTP error shape from a helper back
// to the handler. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles HTTP POST requests for event ingestion.
func (s *Service) IngestHandler(c *gin.Context) {
	if !s.engine.Accepting() {
		writeError(c, &ingestionError{
			statusCode: http.StatusServiceUnavailable,
			errorType:  httperr.HttpNotAcceptingError,
			message:    msgNotAccepting,
		})
		return
	}

	rec, payloadSize, ierr := s.parseRecord(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	slog.Info("Received Event",
		"event_id", rec.ID,
		"event_type", rec.Type,
		"partition_key", rec.PartitionKey,
		"payload_size", payloadSize)

	// Routed, buffered, and eventually emitted downstream. Streaming-path
	// failures surface through the metrics tracker, not this response.
	s.engine.Ingest(rec)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "event_id": rec.ID})
}

// parseRecord reads the raw request body and binds it into an event record.
// Returns the record and the raw payload size (used for structured logging
// upstream).
func (s *Service) parseRecord(c *gin.Context) (*event.Record, int, *ingestionError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req ingestRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	if req.EventType == "" {
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "event_type is required",
		}
	}

	rec := &event.Record{
		ID:           uuid.NewString(),
		Type:         req.EventType,
		PartitionKey: s.derivePartitionKey(req),
		ReceivedAt:   s.now(),
		Payload:      req.Payload,
	}
	return rec, len(bodyBytes), nil
}

// derivePartitionKey resolves the partition key: an explicit request value
// wins, then the configured payload field, then the global sentinel.
func (s *Service) derivePartitionKey(req ingestRequest) string {
	if req.PartitionKey != "" {
		return req.PartitionKey
	}
	if s.partitionField != "" {
		if v, ok := req.Payload[s.partitionField]; ok {
			if key, isString := v.(string); isString && key != "" {
				return key
			}
		}
	}
	return event.GlobalPartition
}

func writeError(c *gin.Context, ierr *ingestionError) {
	c.JSON(ierr.statusCode, httperr.ErrorResponse{
		ErrorType: ierr.errorType,
		Message:   ierr.message,
		Details:   ierr.details,
	})
}
