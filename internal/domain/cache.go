package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ResultCacheKey identifies a cached result: task identity plus a canonical
// hash of the input. Grounded on
// original_source/ratchet-caching/src/result_cache.rs's ResultCacheKey.
type ResultCacheKey struct {
	TaskID      uuid.UUID
	TaskVersion string
	InputHash   string
}

// CachedResult is the value stored in the result cache.
type CachedResult struct {
	ExecutionID  uuid.UUID       `json:"execution_id"`
	Output       json.RawMessage `json:"output,omitempty"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	CachedAt     time.Time       `json:"cached_at"`
	SizeBytes    int             `json:"size_bytes"`
}

// NewCachedSuccess builds a successful CachedResult, computing SizeBytes
// from the serialized output the way result_cache.rs does.
func NewCachedSuccess(executionID uuid.UUID, output json.RawMessage, durationMs int64) CachedResult {
	return CachedResult{
		ExecutionID: executionID,
		Output:      output,
		Success:     true,
		DurationMs:  durationMs,
		CachedAt:    time.Now().UTC(),
		SizeBytes:   len(output),
	}
}

// NewCachedFailure builds a failed CachedResult.
func NewCachedFailure(executionID uuid.UUID, errMessage string, durationMs int64) CachedResult {
	return CachedResult{
		ExecutionID:  executionID,
		Success:      false,
		ErrorMessage: errMessage,
		DurationMs:   durationMs,
		CachedAt:     time.Now().UTC(),
		SizeBytes:    len(errMessage),
	}
}
