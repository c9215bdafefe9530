package corpusindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kamura-io/cartograph/internal/query"
)

// relationCacheKey identifies one relation-join evaluation: the version
// it ran against, the target sheet, and a content fingerprint of the
// sub-query, so identical joins issued by different outer queries in the
// same version share a cache entry (spec §9, relation-caching Open
// Question).
type relationCacheKey struct {
	versionKey string
	target     string
	fingerprint string
}

// RelationCache bounds the number of cached relation-join result sets
// kept in memory at once.
type RelationCache struct {
	cache *lru.Cache[relationCacheKey, []IndexResult]
}

// NewRelationCache builds a cache holding up to size entries. A
// non-positive size disables caching: it returns a nil cache, which
// callers treat as "no cache".
func NewRelationCache(size int) (*RelationCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[relationCacheKey, []IndexResult](size)
	if err != nil {
		return nil, fmt.Errorf("create relation cache: %w", err)
	}
	return &RelationCache{cache: c}, nil
}

// CachingExecutor wraps an Executor so relation-join evaluations are
// cached per (version, target sheet, sub-query) triple.
type CachingExecutor struct {
	Executor
	versionKey string
	cache      *RelationCache
}

// NewCachingExecutor wraps executor with cache, tagging every lookup
// with versionKey so entries never leak across corpus versions.
func NewCachingExecutor(executor Executor, versionKey string, cache *RelationCache) *CachingExecutor {
	return &CachingExecutor{Executor: executor, versionKey: versionKey, cache: cache}
}

// evaluateRelationCached is used by translateRelation in place of a
// direct target.Search call, transparently caching the unbounded
// sub-query evaluation.
func (e *CachingExecutor) evaluateRelationCached(ctx context.Context, target *Index, sub query.PostQuery) ([]IndexResult, error) {
	key := relationCacheKey{
		versionKey:  e.versionKey,
		target:      target.Sheet(),
		fingerprint: fingerprintQuery(sub),
	}

	if cached, ok := e.cache.cache.Get(key); ok {
		return cached, nil
	}

	results, err := target.Search(ctx, e, sub, nil)
	if err != nil {
		return nil, err
	}

	e.cache.cache.Add(key, results)
	return results, nil
}

// fingerprintQuery derives a stable, collision-resistant fingerprint of
// a post-query tree for cache-key purposes.
func fingerprintQuery(node query.PostQuery) string {
	h := sha256.New()
	writeQueryFingerprint(h, node)
	return hex.EncodeToString(h.Sum(nil))
}

func writeQueryFingerprint(h interface{ Write([]byte) (int, error) }, node query.PostQuery) {
	switch node.Kind {
	case query.NodeLeaf:
		fmt.Fprintf(h, "leaf(%s@%s,op=%d,val=%v,cmp=%d,match=%s,rel=%s)\n",
			node.Field.Name, node.Field.Language, node.Operation.Kind, node.Operation.Value,
			node.Operation.Compare, node.Operation.MatchText, node.Operation.RelationTarget)
		if node.Operation.RelationSub != nil {
			writeQueryFingerprint(h, *node.Operation.RelationSub)
		}
		if node.Operation.RelationCondition != nil {
			writeQueryFingerprint(h, *node.Operation.RelationCondition)
		}
	case query.NodeClause:
		fmt.Fprintf(h, "clause(%d)\n", len(node.Clause))
		for _, entry := range node.Clause {
			fmt.Fprintf(h, "occur=%d\n", entry.Occur)
			writeQueryFingerprint(h, entry.Node)
		}
	}
}
