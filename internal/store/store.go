// Package store provides the two-tier credential store backing the
// session manager: a plain tier for ordinary configuration (base URL,
// username) and a secure tier for secrets (tokens, password).
//
// The split lets an implementation back the secure tier with something
// stronger than the config file; the contract does not mandate a
// specific backing store.
package store

import "sync"

// Tier is a minimal key-value capability. Read reports absence via the
// second return value; absence is not an error. I/O failures surface
// as *errs.StorageError.
type Tier interface {
	Write(key, value string) error
	Read(key string) (string, bool, error)
	Delete(key string) error
}

// Store bundles the two tiers handed to the session manager.
type Store struct {
	Plain  Tier
	Secure Tier
}

// MemTier is an in-process Tier. Used in tests and as a fallback when
// no persistence is wanted (credentials live only as long as the
// process).
type MemTier struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemTier() *MemTier {
	return &MemTier{m: make(map[string]string)}
}

func (t *MemTier) Write(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = value
	return nil
}

func (t *MemTier) Read(key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[key]
	return v, ok, nil
}

func (t *MemTier) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, key)
	return nil
}

// NewMemStore returns a Store with both tiers in memory.
func NewMemStore() Store {
	return Store{Plain: NewMemTier(), Secure: NewMemTier()}
}
