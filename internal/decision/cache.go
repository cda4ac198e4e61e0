// Package decision implements the Decision Engine (C4): combines normalized
// comparison, fuzzy score, and optional LLM judgment into one field
// decision (spec.md §4.4).
package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

// Cache is the explicit decision-cache component referenced throughout
// spec.md §4.4/§5/§9 ("model as an explicit component passed to the
// Decision Engine; absence of a cache argument means caching is
// disabled"). It is backed by github.com/patrickmn/go-cache, already a
// direct teacher dependency, chosen over the teacher's Redis-backed
// ValidationCache (internal/cache/interfaces.go) because this cache is
// intra-run and in-process, not a distributed cache shared across
// workers/processes.
type Cache struct {
	c *gocache.Cache
}

// NewCache builds a Cache with the given TTL. A zero TTL disables
// expiration (go-cache's NoExpiration sentinel).
func NewCache(ttl time.Duration) *Cache {
	exp := ttl
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	return &Cache{c: gocache.New(exp, exp/2)}
}

// Key computes hash(normalizedCsv, normalizedWeb, fieldType, ruleset
// version) per spec.md §4.4.
func Key(normalizedCSV, normalizedWeb string, fieldType models.FieldType, rulesetVersion string) string {
	h := sha256.New()
	h.Write([]byte(normalizedCSV))
	h.Write([]byte{0})
	h.Write([]byte(normalizedWeb))
	h.Write([]byte{0})
	h.Write([]byte(fieldType))
	h.Write([]byte{0})
	h.Write([]byte(rulesetVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached FieldDecision and true on hit.
func (c *Cache) Get(key string) (models.FieldDecision, bool) {
	if c == nil || c.c == nil {
		return models.FieldDecision{}, false
	}
	v, ok := c.c.Get(key)
	if !ok {
		return models.FieldDecision{}, false
	}
	fd, ok := v.(models.FieldDecision)
	return fd, ok
}

// Set stores a FieldDecision under key. Writes are idempotent by
// construction: storing the same key twice with the same deterministic
// inputs always produces the same value (spec.md §5).
func (c *Cache) Set(key string, fd models.FieldDecision) {
	if c == nil || c.c == nil {
		return
	}
	c.c.SetDefault(key, fd)
}
