package router

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

const cacheDescriptionPrefix = 100

// candidateCache memoises detection results, misses included.
type candidateCache struct {
	lru *expirable.LRU[string, *autopatch.Candidate]
}

func newCandidateCache(size int, ttl time.Duration) *candidateCache {
	if size <= 0 {
		return nil
	}
	return &candidateCache{lru: expirable.NewLRU[string, *autopatch.Candidate](size, nil, ttl)}
}

func cacheKey(t *ticket.Ticket) string {
	desc := []rune(t.Description)
	if len(desc) > cacheDescriptionPrefix {
		desc = desc[:cacheDescriptionPrefix]
	}
	return t.ID + "-" + t.Title + "-" + string(desc)
}

func (c *candidateCache) get(t *ticket.Ticket) (*autopatch.Candidate, bool) {
	if c == nil {
		return nil, false
	}
	cand, ok := c.lru.Get(cacheKey(t))
	if ok {
		CandidateCacheTotal.WithLabelValues("hit").Inc()
	} else {
		CandidateCacheTotal.WithLabelValues("miss").Inc()
	}
	return cand, ok
}

func (c *candidateCache) put(t *ticket.Ticket, cand *autopatch.Candidate) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(t), cand)
}

func (c *candidateCache) forget(t *ticket.Ticket) {
	if c == nil {
		return
	}
	c.lru.Remove(cacheKey(t))
}

// Purge drops every cached candidate.
func (r *Router) Purge() {
	if r.cache != nil {
		r.cache.lru.Purge()
	}
}
