package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/DeafMist/headline-radar/internal/models"
)

const defaultPageSize = 500

// indexMapping keeps sentiment_entities nested so aggregations count every
// array element and (type, value) pairs are never cross-matched.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "headline_text": {"type": "text"},
      "publish_date":  {"type": "date", "format": "strict_date_optional_time||yyyyMMdd"},
      "sentiment":     {"type": "keyword"},
      "sentiment_entities": {
        "type": "nested",
        "properties": {
          "type":  {"type": "keyword"},
          "value": {"type": "keyword"}
        }
      }
    }
  }
}`

// Config selects the cluster and index.
type Config struct {
	Addr     string
	Index    string
	PageSize int
}

// Client wraps go-elasticsearch with the headline store operations.
type Client struct {
	es       *elasticsearch.Client
	index    string
	pageSize int
	log      *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Client{es: es, index: cfg.Index, pageSize: pageSize, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Close releases nothing; the HTTP transport is shared and idle connections
// are reclaimed by the runtime.
func (c *Client) Close(context.Context) error { return nil }

// EnsureIndex creates the headline index with its mapping when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index failed: %s", readError(res))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// InsertHeadlines bulk-creates documents. Ids that already exist are left
// untouched and not counted.
func (c *Client) InsertHeadlines(ctx context.Context, docs ...models.HeadlineDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     c.es,
		Index:      c.index,
		NumWorkers: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("create bulk indexer: %w", err)
	}

	var (
		inserted atomic.Int64
		mu       sync.Mutex
		failures []error
	)

	for _, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			_ = bi.Close(ctx)
			return int(inserted.Load()), fmt.Errorf("marshal headline %s: %w", doc.ID, err)
		}

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "create",
			DocumentID: doc.ID,
			Body:       bytes.NewReader(payload),
			OnSuccess: func(context.Context, esutil.BulkIndexerItem, esutil.BulkIndexerResponseItem) {
				inserted.Add(1)
			},
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err == nil && res.Status == http.StatusConflict {
					return
				}
				if err == nil {
					err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
				}
				mu.Lock()
				failures = append(failures, fmt.Errorf("create headline %s: %w", item.DocumentID, err))
				mu.Unlock()
			},
		})
		if err != nil {
			_ = bi.Close(ctx)
			return int(inserted.Load()), fmt.Errorf("queue headline %s: %w", doc.ID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return int(inserted.Load()), fmt.Errorf("flush bulk indexer: %w", err)
	}

	if len(failures) > 0 {
		return int(inserted.Load()), fmt.Errorf("%d headlines failed: %w", len(failures), failures[0])
	}
	return int(inserted.Load()), nil
}

// ForEachHeadline pages through the index in id order with search_after and
// calls fn for each document. Errors from fn are returned unchanged.
func (c *Client) ForEachHeadline(ctx context.Context, fn func(models.HeadlineDocument) error) error {
	var after []any
	for {
		body := map[string]any{
			"size":  c.pageSize,
			"query": map[string]any{"match_all": map[string]any{}},
			"sort":  []map[string]any{{"id": map[string]any{"order": "asc"}}},
		}
		if after != nil {
			body["search_after"] = after
		}

		hits, err := c.search(ctx, body)
		if err != nil {
			return err
		}

		for _, hit := range hits {
			if err := fn(hit.document()); err != nil {
				return err
			}
		}

		if len(hits) < c.pageSize {
			return nil
		}
		after = hits[len(hits)-1].Sort
	}
}

// UpdateEnrichment sets sentiment_entities and sentiment in one partial update.
// Arrays in a partial doc replace the stored array rather than merging.
func (c *Client) UpdateEnrichment(ctx context.Context, id string, e models.Enrichment) error {
	if e.Entities == nil {
		e.Entities = []models.EntityAnnotation{}
	}
	payload, err := json.Marshal(map[string]any{"doc": e})
	if err != nil {
		return fmt.Errorf("marshal enrichment: %w", err)
	}

	req := esapi.UpdateRequest{
		Index:      c.index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("update headline %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("update headline %s: %w", id, models.ErrNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("update headline %s failed: %s", id, readError(res))
	}

	return nil
}

// AggregateEntities ranks (type, value) pairs with a nested multi_terms
// aggregation. Each nested document is one array element, so repeats inside a
// headline are counted. Ties are ordered by key.
func (c *Client) AggregateEntities(ctx context.Context, limit int) ([]models.EntityFrequencyRow, error) {
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"entities": map[string]any{
				"nested": map[string]any{"path": "sentiment_entities"},
				"aggs": map[string]any{
					"top": map[string]any{
						"multi_terms": map[string]any{
							"terms": []map[string]any{
								{"field": "sentiment_entities.type"},
								{"field": "sentiment_entities.value"},
							},
							"size": limit,
							"order": []map[string]any{
								{"_count": "desc"},
								{"_key": "asc"},
							},
						},
					},
				},
			},
		},
	}

	var parsed struct {
		Aggregations struct {
			Entities struct {
				Top struct {
					Buckets []struct {
						Key      []string `json:"key"`
						DocCount int      `json:"doc_count"`
					} `json:"buckets"`
				} `json:"top"`
			} `json:"entities"`
		} `json:"aggregations"`
	}
	if err := c.searchInto(ctx, body, &parsed); err != nil {
		return nil, err
	}

	buckets := parsed.Aggregations.Entities.Top.Buckets
	rows := make([]models.EntityFrequencyRow, 0, len(buckets))
	for _, b := range buckets {
		if len(b.Key) != 2 {
			return nil, fmt.Errorf("unexpected aggregation key %v", b.Key)
		}
		rows = append(rows, models.EntityFrequencyRow{
			Entity: models.EntityAnnotation{Type: b.Key[0], Value: b.Key[1]},
			Count:  b.DocCount,
		})
	}
	return rows, nil
}

// FindByEntityType returns up to limit headlines holding an entity of entityType.
func (c *Client) FindByEntityType(ctx context.Context, entityType string, limit int) ([]models.HeadlineDocument, error) {
	if limit <= 0 {
		limit = c.pageSize
	}
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"nested": map[string]any{
				"path": "sentiment_entities",
				"query": map[string]any{
					"term": map[string]any{"sentiment_entities.type": entityType},
				},
			},
		},
		"sort": []map[string]any{{"id": map[string]any{"order": "asc"}}},
	}

	hits, err := c.search(ctx, body)
	if err != nil {
		return nil, err
	}

	docs := make([]models.HeadlineDocument, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, hit.document())
	}
	return docs, nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

type hit struct {
	ID     string                  `json:"_id"`
	Source models.HeadlineDocument `json:"_source"`
	Sort   []any                   `json:"sort"`
}

func (h hit) document() models.HeadlineDocument {
	doc := h.Source
	if doc.ID == "" {
		doc.ID = h.ID
	}
	return doc
}

func (c *Client) search(ctx context.Context, body map[string]any) ([]hit, error) {
	var parsed struct {
		Hits struct {
			Hits []hit `json:"hits"`
		} `json:"hits"`
	}
	if err := c.searchInto(ctx, body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Hits.Hits, nil
}

func (c *Client) searchInto(ctx context.Context, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("search failed: %s", readError(res))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

func readError(res *esapi.Response) string {
	data, err := io.ReadAll(res.Body)
	if err != nil || len(data) == 0 {
		return res.Status()
	}
	return strings.TrimSpace(string(data))
}
