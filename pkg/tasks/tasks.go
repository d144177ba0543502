// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"time"

	"kb-rag-go/internal/model"
)

// IngestTask carries one document's ingest request through the queue.
type IngestTask struct {
	Request    model.IngestRequest `json:"request"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// NewIngestTask wraps req with the current time.
func NewIngestTask(req *model.IngestRequest) IngestTask {
	return IngestTask{Request: *req, EnqueuedAt: time.Now().UTC()}
}
