package jwt

import (
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// KeySetCache is a bounded LRU of JSON Web Key Sets keyed by organization
// and registration generation.
// Entries expire a fixed time after they were written; reads do not extend
// their lifetime.
type KeySetCache struct {
	lru *expirable.LRU[string, *jose.JSONWebKeySet]
}

// NewKeySetCache creates a cache holding at most maxSize key sets.
func NewKeySetCache(maxSize int, expireAfterWrite time.Duration) *KeySetCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &KeySetCache{lru: expirable.NewLRU[string, *jose.JSONWebKeySet](maxSize, nil, expireAfterWrite)}
}

func (c *KeySetCache) Get(key string) (*jose.JSONWebKeySet, bool) {
	return c.lru.Get(key)
}

func (c *KeySetCache) Put(key string, set *jose.JSONWebKeySet) {
	c.lru.Add(key, set)
}

func (c *KeySetCache) Invalidate(key string) {
	c.lru.Remove(key)
}

func (c *KeySetCache) Len() int {
	return c.lru.Len()
}
