package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/store"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	cacheTierMemory = "memory"
	cacheTierStore  = "store"
)

// CacheObserver is told about every cache lookup.
type CacheObserver interface {
	ObserveCacheLookup(tier string, hit bool)
}

// ResultCache returns a recent analysis of a subject instead of re-running it.
type ResultCache interface {
	// Get returns nil without error when no fresh analysis exists.
	Get(ctx context.Context, subject model.Subject) (*model.Analysis, error)
	Put(analysis *model.Analysis)
}

type resultCache struct {
	analyses store.AnalysisStore
	lru      *expirable.LRU[string, *model.Analysis]
	ttl      time.Duration
	observer CacheObserver
	now      func() time.Time
}

func NewResultCache(analyses store.AnalysisStore, size int, ttl time.Duration, observer CacheObserver) ResultCache {
	if size <= 0 {
		size = 512
	}
	return &resultCache{
		analyses: analyses,
		lru:      expirable.NewLRU[string, *model.Analysis](size, nil, ttl),
		ttl:      ttl,
		observer: observer,
		now:      time.Now,
	}
}

func cacheKey(kind model.SubjectKind, subjectID string) string {
	return string(kind) + ":" + subjectID
}

func (c *resultCache) Get(ctx context.Context, subject model.Subject) (*model.Analysis, error) {
	key := cacheKey(subject.Kind, subject.ID())
	cutoff := c.now().Add(-c.ttl)

	// The LRU TTL counts from insertion, so freshness is rechecked against creation time.
	if a, ok := c.lru.Get(key); ok && a.CreatedAt.After(cutoff) {
		c.observe(cacheTierMemory, true)
		return a, nil
	}
	c.observe(cacheTierMemory, false)

	a, err := c.analyses.LatestForSubject(ctx, subject.Kind, subject.ID(), cutoff)
	if errors.Is(err, store.ErrNotFound) {
		c.observe(cacheTierStore, false)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up cached analysis: %w", err)
	}

	c.observe(cacheTierStore, true)
	c.lru.Add(key, a)
	slog.DebugContext(ctx, "analysis cache hit", "subject_id", subject.ID(), "analysis_id", a.ID)
	return a, nil
}

func (c *resultCache) Put(a *model.Analysis) {
	if a == nil || a.ID == 0 {
		return
	}
	c.lru.Add(cacheKey(a.SubjectKind, a.SubjectID), a)
}

func (c *resultCache) observe(tier string, hit bool) {
	if c.observer != nil {
		c.observer.ObserveCacheLookup(tier, hit)
	}
}
