package validation

import "github.com/Veraticus/rexpenalty/internal/model"

type cacheKey struct {
	fareComponentID string
	record          model.RecordKey
	check           Check
}

// Cache memoises check verdicts for one request. Verdicts depend only on the
// fare component, the record and the check, so they are shared across
// permutations.
type Cache struct {
	verdicts map[cacheKey]bool
	hits     int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{verdicts: make(map[cacheKey]bool)}
}

// Lookup returns a cached verdict.
func (c *Cache) Lookup(fareComponentID string, record model.RecordKey, check Check) (passed, found bool) {
	passed, found = c.verdicts[cacheKey{fareComponentID, record, check}]
	if found {
		c.hits++
	}
	return passed, found
}

// Store records a verdict.
func (c *Cache) Store(fareComponentID string, record model.RecordKey, check Check, passed bool) {
	c.verdicts[cacheKey{fareComponentID, record, check}] = passed
}

// Len returns the number of cached verdicts.
func (c *Cache) Len() int {
	return len(c.verdicts)
}

// Hits returns how many lookups were answered from the cache.
func (c *Cache) Hits() int {
	return c.hits
}
