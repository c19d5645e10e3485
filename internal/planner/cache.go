package planner

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/value"
)

// Cache memoizes compiled plans keyed on normalized query text plus
// parameter type shape, invalidating whenever a DDL statement bumps the
// catalog's DDL epoch (spec §4.9's plan cache).
type Cache struct {
	cat     *catalog.Catalog
	lru     *lru.Cache[string, cacheEntry]
	indexed IndexChecker
}

type cacheEntry struct {
	ddlEpoch uint64
	plan     *Plan
}

// NewCache builds a plan cache holding up to capacity compiled plans.
func NewCache(cat *catalog.Catalog, indexed IndexChecker, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	l, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{cat: cat, lru: l, indexed: indexed}, nil
}

// GetOrBuild parses and plans text if not already cached for the current
// DDL epoch and parameter type shape, else returns the cached plan.
func (c *Cache) GetOrBuild(text string, params map[string]value.Value) (*Plan, error) {
	key := cacheKey(text, params)
	epoch := c.cat.DDLEpoch()
	if e, ok := c.lru.Get(key); ok && e.ddlEpoch == epoch {
		return e.plan, nil
	}

	q, err := cypher.ParseQuery(text)
	if err != nil {
		return nil, err
	}
	plan, err := Build(q, c.indexed)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, cacheEntry{ddlEpoch: epoch, plan: plan})
	return plan, nil
}

// cacheKey normalizes whitespace in text and appends each parameter's
// type tag, so two queries differing only by parameter value (not type)
// share a compiled plan while a type change forces a re-plan.
func cacheKey(text string, params map[string]value.Value) string {
	var b strings.Builder
	fields := strings.Fields(text)
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f)
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	// simple insertion sort keeps this allocation-free for the small
	// parameter counts real queries carry, and avoids importing sort
	// just for deterministic key ordering.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	for _, name := range names {
		b.WriteByte('\x00')
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(params[name].Type().String())
	}
	return b.String()
}
