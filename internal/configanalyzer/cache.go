package configanalyzer

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
)

// queryCache memoises raw corpus results per query text. Extracted
// configurations are never cached.
type queryCache struct {
	lru *expirable.LRU[string, []knowledge.Document]
}

func newQueryCache(size int, ttl time.Duration) *queryCache {
	if size <= 0 {
		return nil
	}
	return &queryCache{lru: expirable.NewLRU[string, []knowledge.Document](size, nil, ttl)}
}

func (c *queryCache) get(q string) ([]knowledge.Document, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(q)
}

func (c *queryCache) put(q string, docs []knowledge.Document) {
	if c == nil {
		return
	}
	c.lru.Add(q, docs)
}

func (c *queryCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
