// internal/loan/audit/elastic.go

// Package audit indexes lifecycle transitions into Elasticsearch. The trail
// is an operational convenience, not part of the transactional record, so
// every failure here is logged and swallowed.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/loan/lifecycle"
)

const indexTimeout = 5 * time.Second

// ElasticRecorder writes lifecycle events to a single Elasticsearch index.
type ElasticRecorder struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

// NewElasticRecorder builds a recorder targeting the given index.
func NewElasticRecorder(client *elasticsearch.Client, index string, log logger.Logger) *ElasticRecorder {
	return &ElasticRecorder{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

// RecordTransition indexes one event. The document id combines application,
// command and timestamp so replays of the same command stay distinguishable.
func (r *ElasticRecorder) RecordTransition(ctx context.Context, event lifecycle.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("Failed to serialize audit event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: fmt.Sprintf("%s-%s-%d", event.ApplicationID, event.Command, event.OccurredAt.UnixNano()),
		Body:       bytes.NewReader(payload),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		r.logger.Warn("Failed to index audit event", map[string]interface{}{
			"error":          err.Error(),
			"application_id": event.ApplicationID,
			"command":        event.Command,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		r.logger.Warn("Audit index request rejected", map[string]interface{}{
			"application_id": event.ApplicationID,
			"command":        event.Command,
			"status":         res.Status(),
		})
	}
}
