package cache

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store backed by a sharded sturdyc client.
// sturdyc applies one TTL to every entry, so the client is created with the
// longest TTL in use and shorter ones are enforced on read.
type MemoryStore struct {
	client *sturdyc.Client[memEntry]
	now    func() time.Time
}

// NewMemoryStore creates a store holding up to capacity entries. maxTTL must
// be at least the longest TTL passed to Set.
func NewMemoryStore(capacity int, maxTTL time.Duration) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	shards := 8
	if capacity < shards {
		shards = 1
	}
	return &MemoryStore{
		client: sturdyc.New[memEntry](capacity, shards, maxTTL, 10),
		now:    time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.client.Delete(key)
		return nil, false, nil
	}
	return e.data, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{data: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.client.Set(key, e)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.client.Delete(k)
	}
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	for _, k := range m.client.ScanKeys() {
		if strings.HasPrefix(k, prefix) {
			m.client.Delete(k)
		}
	}
	return nil
}

// Close is a no-op; sturdyc holds no external resources.
func (m *MemoryStore) Close() error { return nil }
