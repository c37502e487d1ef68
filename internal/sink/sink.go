package sink

import (
	"context"

	"github.com/webharvest/go-harvester/internal/domain"
)

// Sink defines the interface for record storage backends
// Two implementations: PostgresSink and ElasticsearchSink
type Sink interface {
	// Store persists all records of a batch
	Store(ctx context.Context, batch *domain.Batch) error
}
