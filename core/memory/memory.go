// Package memory implements the memory-store collaborator the ensemble
// consumes: recorded events indexed for full-text retrieval with a bounded
// record cache and a short-TTL query cache in front of the index.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// RecordType classifies a stored memory record.
type RecordType string

const (
	TypeSemantic   RecordType = "semantic"
	TypeEpisodic   RecordType = "episodic"
	TypeSummary    RecordType = "summary"
	TypePreference RecordType = "preference"
)

// Record is one retrievable memory entry.
type Record struct {
	ID        string
	Content   string
	Type      RecordType
	Relevance float64
	CreatedAt time.Time
}

const (
	defaultRecordCacheSize = 4096
	defaultQueryCacheTTL   = 30 * time.Second

	queryCacheCounters = 1e5
	queryCacheMaxCost  = 1 << 24
	queryCacheBuffers  = 64
)

// Config tunes the store's caches.
type Config struct {
	// RecordCacheSize bounds the in-memory record cache.
	RecordCacheSize int
	// QueryCacheTTL is how long a query's result list stays cached.
	QueryCacheTTL time.Duration
}

// Store indexes recorded events in Bleve for relevance retrieval. Records
// themselves live in an LRU cache keyed by document id; evicted records are
// still findable through the index but return content from stored fields.
type Store struct {
	mu          sync.RWMutex
	index       bleve.Index
	records     *lru.Cache[string, Record]
	queryCache  *ristretto.Cache
	queryTTL    time.Duration
	lastSummary string
	now         func() time.Time
}

type indexedDoc struct {
	Content   string `json:"content"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

// NewStore builds an in-memory store. Suitable for a single process lifetime;
// long-term memory persistence is owned by the host application.
func NewStore(cfg Config) (*Store, error) {
	if cfg.RecordCacheSize <= 0 {
		cfg.RecordCacheSize = defaultRecordCacheSize
	}
	if cfg.QueryCacheTTL <= 0 {
		cfg.QueryCacheTTL = defaultQueryCacheTTL
	}

	mapping := bleve.NewIndexMapping()
	index, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("open memory index: %w", err)
	}

	records, err := lru.New[string, Record](cfg.RecordCacheSize)
	if err != nil {
		return nil, fmt.Errorf("record cache: %w", err)
	}

	queryCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: queryCacheCounters,
		MaxCost:     queryCacheMaxCost,
		BufferItems: queryCacheBuffers,
	})
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}

	return &Store{
		index:      index,
		records:    records,
		queryCache: queryCache,
		queryTTL:   cfg.QueryCacheTTL,
		now:        time.Now,
	}, nil
}

// RecordEvent stores and indexes one memory entry. meta may carry a "type"
// key selecting the record type; episodic is the default.
func (s *Store) RecordEvent(ctx context.Context, content string, meta map[string]string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("record event: empty content")
	}

	recType := TypeEpisodic
	if t, ok := meta["type"]; ok {
		recType = RecordType(t)
	}

	rec := Record{
		ID:        uuid.NewString(),
		Content:   content,
		Type:      recType,
		CreatedAt: s.now().UTC(),
	}

	doc := indexedDoc{
		Content:   rec.Content,
		Type:      string(rec.Type),
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
	if err := s.index.Index(rec.ID, doc); err != nil {
		return fmt.Errorf("index memory record: %w", err)
	}

	s.records.Add(rec.ID, rec)

	if recType == TypeSummary {
		s.mu.Lock()
		s.lastSummary = content
		s.mu.Unlock()
	}

	// Any write invalidates cached result lists.
	s.queryCache.Clear()

	_ = ctx
	return nil
}

// RetrieveRelevant returns up to limit records matching query, most relevant
// first.
func (s *Store) RetrieveRelevant(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}

	cacheKey := fmt.Sprintf("%d:%s", limit, query)
	if cached, found := s.queryCache.Get(cacheKey); found {
		if recs, ok := cached.([]Record); ok {
			return recs, nil
		}
	}

	matchQuery := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.Fields = []string{"*"}

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	records := make([]Record, 0, len(result.Hits))
	for _, hit := range result.Hits {
		rec, ok := s.records.Get(hit.ID)
		if !ok {
			rec = s.recordFromFields(hit.ID, hit.Fields)
		}
		rec.Relevance = hit.Score
		records = append(records, rec)
	}

	s.queryCache.SetWithTTL(cacheKey, records, int64(len(records)*64+len(query)), s.queryTTL)
	return records, nil
}

// LastSessionSummary returns the most recent summary-type record's content,
// empty when none has been recorded.
func (s *Store) LastSessionSummary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSummary
}

// Close releases the index and caches.
func (s *Store) Close() error {
	s.queryCache.Close()
	return s.index.Close()
}

func (s *Store) recordFromFields(id string, fields map[string]any) Record {
	rec := Record{ID: id, Type: TypeEpisodic}
	if v, ok := fields["content"].(string); ok {
		rec.Content = v
	}
	if v, ok := fields["type"].(string); ok {
		rec.Type = RecordType(v)
	}
	if v, ok := fields["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			rec.CreatedAt = ts
		}
	}
	return rec
}
