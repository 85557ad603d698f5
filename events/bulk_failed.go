package events

// BulkFailure describes one directive the search engine reported as failed
// within an otherwise accepted bulk request.
type BulkFailure struct {
	Index   string `json:"index"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// BulkFailedEvent is an immutable record of partial failures inside a bulk
// operation, carrying the original request payload for diagnostic replay.
type BulkFailedEvent struct {
	operation string
	failures  []BulkFailure
	payload   []string
}

// NewBulkFailedEvent builds the event. The failure and payload slices are
// copied so later mutation by the caller cannot leak into subscribers.
func NewBulkFailedEvent(operation string, failures []BulkFailure, payload []string) *BulkFailedEvent {
	e := &BulkFailedEvent{
		operation: operation,
		failures:  make([]BulkFailure, len(failures)),
		payload:   make([]string, len(payload)),
	}
	copy(e.failures, failures)
	copy(e.payload, payload)
	return e
}

// Operation returns the bulk operation tag, e.g. "update" or "delete".
func (e *BulkFailedEvent) Operation() string { return e.operation }

// Failures returns the ordered failure records.
func (e *BulkFailedEvent) Failures() []BulkFailure {
	out := make([]BulkFailure, len(e.failures))
	copy(out, e.failures)
	return out
}

// Payload returns the bulk request body lines that produced the failures.
func (e *BulkFailedEvent) Payload() []string {
	out := make([]string, len(e.payload))
	copy(out, e.payload)
	return out
}
