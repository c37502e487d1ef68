package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog"

	"github.com/webharvest/go-harvester/internal/domain"
)

// ElasticsearchSink stores harvested records in Elasticsearch
type ElasticsearchSink struct {
	client    *elasticsearch.Client
	indexName string
	log       zerolog.Logger
}

// NewElasticsearchSink creates a new Elasticsearch sink
func NewElasticsearchSink(addresses []string, indexName string, logger zerolog.Logger) (*ElasticsearchSink, error) {
	cfg := elasticsearch.Config{
		Addresses: addresses,
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create es client: %w", err)
	}

	// Check connection
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("es error: %s", res.Status())
	}

	return &ElasticsearchSink{
		client:    client,
		indexName: indexName,
		log:       logger,
	}, nil
}

// Store bulk-indexes all records of a batch
func (s *ElasticsearchSink) Store(ctx context.Context, batch *domain.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	var buf bytes.Buffer

	meta := []byte(fmt.Sprintf(`{"index":{"_index":%q}}%s`, s.indexName, "\n"))
	for _, rec := range batch.Records {
		docBytes, err := json.Marshal(rec)
		if err != nil {
			s.log.Warn().Err(err).Msg("marshal record, skipping")
			continue
		}
		buf.Write(meta)
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := s.client.Bulk(bytes.NewReader(buf.Bytes()), s.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk error: %s", res.Status())
	}

	// Parse response to check for individual errors
	var bulkRes struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				ID     string `json:"_id"`
				Status int    `json:"status"`
				Error  struct {
					Type   string `json:"type"`
					Reason string `json:"reason"`
				} `json:"error"`
			} `json:"index"`
		} `json:"items"`
	}

	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("parse bulk response: %w", err)
	}

	if bulkRes.Errors {
		for _, item := range bulkRes.Items {
			if item.Index.Status >= 400 {
				s.log.Warn().Str("id", item.Index.ID).
					Str("type", item.Index.Error.Type).
					Str("reason", item.Index.Error.Reason).
					Msg("bulk index error")
			}
		}
	}

	return nil
}

// EnsureIndex creates the index if it doesn't exist. Record fields are
// run-defined, so mapping stays dynamic with keyword sub-fields.
func (s *ElasticsearchSink) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.indexName})
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == 200 {
		return nil // Index already exists
	}

	mapping := `{
		"mappings": {
			"dynamic_templates": [
				{
					"strings_as_text": {
						"match_mapping_type": "string",
						"mapping": {
							"type": "text",
							"fields": {"keyword": {"type": "keyword", "ignore_above": 256}}
						}
					}
				}
			]
		}
	}`

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index error: %s", res.Status())
	}

	return nil
}
