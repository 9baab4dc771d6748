package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore, used by tests and by local runs
// that seed the dataset from memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	body     []byte
	modified time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]memoryObject{}, now: time.Now}
}

func (m *MemoryStore) PutBytes(key string, body []byte) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[cleaned] = memoryObject{body: append([]byte(nil), body...), modified: m.now().UTC()}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, _, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(object.body)), nil
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	object, cleaned, err := m.lookup(ctx, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	sum := md5.Sum(object.body)
	return ObjectInfo{
		Key:          cleaned,
		Size:         int64(len(object.body)),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: object.modified,
	}, nil
}

func (m *MemoryStore) lookup(ctx context.Context, key string) (memoryObject, string, error) {
	if err := ctx.Err(); err != nil {
		return memoryObject{}, "", err
	}
	cleaned, err := CleanKey(key)
	if err != nil {
		return memoryObject{}, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	object, ok := m.objects[cleaned]
	if !ok {
		return memoryObject{}, "", ErrObjectNotFound
	}
	return object, cleaned, nil
}
