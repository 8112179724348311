package resilience

import (
	"time"

	"github.com/google/uuid"

	"github.com/podium-performance/funnel-cli/internal/model"
)

// PushEntry is one rider whose outbound master push failed and is parked
// for retry. Pushes are fire-and-forget during a reconciliation run; the
// queue is how a later sync drains what the run could not deliver.
type PushEntry struct {
	ID           string      `json:"id"`
	Rider        model.Rider `json:"rider"`
	Error        string      `json:"error"`
	ErrorType    string      `json:"error_type"` // "transient" or "permanent"
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
	NextRetryAt  time.Time   `json:"next_retry_at"`
	CreatedAt    time.Time   `json:"created_at"`
	LastFailedAt time.Time   `json:"last_failed_at"`
}

// NewPushEntry parks a failed push for the given rider. The ID is
// derived from the rider key so repeated failures for the same record
// collapse into one queue entry.
func NewPushEntry(r model.Rider, pushErr error, maxRetries int) PushEntry {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	now := time.Now().UTC()
	return PushEntry{
		ID:           PushID(r.Key),
		Rider:        r,
		Error:        pushErr.Error(),
		ErrorType:    ClassifyError(pushErr),
		MaxRetries:   maxRetries,
		NextRetryAt:  now.Add(NextBackoff(0)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// CanRetry reports whether this entry has retry budget left.
func (e *PushEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// NextBackoff returns the delay before retry n: 1m, 4m, 16m, then capped
// at an hour. Master pushes are not latency sensitive.
func NextBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 2 {
		return time.Hour
	}
	return time.Minute << (2 * retryCount)
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// PushID derives a stable queue ID for a rider so repeated failures for
// the same record update one entry instead of piling up.
func PushID(riderKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("push:"+riderKey)).String()
}
