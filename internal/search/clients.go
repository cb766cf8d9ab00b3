package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"inkbook/internal/config"
	"inkbook/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ClientIndex is the CRM client directory in Elasticsearch.
type ClientIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewClientIndex connects and creates the index if it is missing.
func NewClientIndex(cfg config.ElasticsearchConfig) (*ClientIndex, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
		Transport:     &http.Transport{ResponseHeaderTimeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	idx := &ClientIndex{client: es, index: cfg.Index}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := idx.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return idx, nil
}

func (c *ClientIndex) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		slog.Info("Elasticsearch index already exists", "index", c.index)
		return nil
	}

	mapping := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"email": map[string]any{
					"type": "keyword",
					"fields": map[string]any{
						"text": map[string]any{"type": "text"},
					},
				},
				"name": map[string]any{
					"type": "text",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
				"phone":          map[string]any{"type": "keyword"},
				"tags":           map[string]any{"type": "keyword"},
				"notes":          map[string]any{"type": "text"},
				"whatsappStatus": map[string]any{"type": "keyword"},
				"totalBookings":  map[string]any{"type": "integer"},
				"totalSpent":     map[string]any{"type": "double"},
				"lastVisit":      map[string]any{"type": "date", "format": "yyyy-MM-dd"},
				"updatedAt":      map[string]any{"type": "date"},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.index,
		Body:  bytes.NewReader(body),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.index)
	return nil
}

// IndexClient upserts the client document keyed by lower-cased email.
func (c *ClientIndex) IndexClient(ctx context.Context, client *models.Client) error {
	doc, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: strings.ToLower(client.Email),
		Body:       bytes.NewReader(doc),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index client: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}
	return nil
}

// SearchClients runs a fuzzy match over name, email, phone, tags and notes.
func (c *ClientIndex) SearchClients(ctx context.Context, query string, limit int) ([]models.Client, error) {
	if limit <= 0 {
		limit = 50
	}

	searchRequest := map[string]any{
		"query": buildClientQuery(query),
		"sort":  buildClientSort(query),
		"size":  limit,
	}

	body, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source models.Client `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	clients := make([]models.Client, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		clients[i] = hit.Source
	}
	return clients, nil
}

func buildClientQuery(query string) map[string]any {
	query = strings.TrimSpace(query)
	if query == "" {
		return map[string]any{"match_all": map[string]any{}}
	}

	return map[string]any{
		"bool": map[string]any{
			"should": []map[string]any{
				{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"name^3", "email.text^2", "notes"},
						"fuzziness": "AUTO",
					},
				},
				{"term": map[string]any{"email": strings.ToLower(query)}},
				{"term": map[string]any{"phone": query}},
				{"term": map[string]any{"tags": query}},
			},
			"minimum_should_match": 1,
		},
	}
}

func buildClientSort(query string) []map[string]any {
	if strings.TrimSpace(query) != "" {
		return []map[string]any{
			{"_score": map[string]any{"order": "desc"}},
			{"name.keyword": map[string]any{"order": "asc"}},
		}
	}
	return []map[string]any{
		{"name.keyword": map[string]any{"order": "asc"}},
	}
}

// HealthCheck waits briefly for a yellow cluster.
func (c *ClientIndex) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       5 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}
	return nil
}
