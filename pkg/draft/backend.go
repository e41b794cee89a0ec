// Package draft keeps unsent input text durable per conversation and keeps
// several editors of the same conversation in sync.
package draft

import (
	"errors"
	"sync"
)

var (
	// ErrQuotaExceeded is returned by a backend that has no room for a write
	ErrQuotaExceeded = errors.New("draft storage quota exceeded")

	// ErrUnavailable is returned by a backend when storage is disabled
	ErrUnavailable = errors.New("draft storage unavailable")
)

// Backend is a string key-value store for drafts
type Backend interface {
	// Name identifies the backend in the recorded storage type
	Name() string
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryBackend keeps values for the life of the process
type MemoryBackend struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int64
	used  int64
}

// NewMemoryBackend creates a memory backend. A positive quota limits the
// total bytes of keys and values held.
func NewMemoryBackend(quota int64) *MemoryBackend {
	return &MemoryBackend{
		data:  make(map[string]string),
		quota: quota,
	}
}

func (b *MemoryBackend) Name() string {
	return "session"
}

func (b *MemoryBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *MemoryBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := b.used + entrySize(key, value)
	if old, ok := b.data[key]; ok {
		used -= entrySize(key, old)
	}
	if b.quota > 0 && used > b.quota {
		return ErrQuotaExceeded
	}

	b.data[key] = value
	b.used = used
	return nil
}

func (b *MemoryBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.data[key]; ok {
		b.used -= entrySize(key, old)
		delete(b.data, key)
	}
	return nil
}

// Len returns the number of stored keys
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}

type disabledBackend struct{}

// Disabled returns a backend that rejects every call with ErrUnavailable
func Disabled() Backend {
	return disabledBackend{}
}

func (disabledBackend) Name() string                       { return "disabled" }
func (disabledBackend) Get(string) (string, bool, error)   { return "", false, ErrUnavailable }
func (disabledBackend) Set(string, string) error           { return ErrUnavailable }
func (disabledBackend) Remove(string) error                { return ErrUnavailable }
