package artifact

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore keeps slots in memory. Blobs are copied on the way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[Key][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[Key][]byte)}
}

func (s *MemoryStore) Location(key Key) string {
	return "mem://" + key.FileName()
}

func (s *MemoryStore) Put(_ context.Context, key Key, blob []byte) error {
	if !key.Valid() {
		return errors.Wrapf(ErrUnknownKey, "%q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), blob...)

	return nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	if !key.Valid() {
		return nil, errors.Wrapf(ErrUnknownKey, "%q", key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", key)
	}

	return append([]byte(nil), blob...), nil
}

var _ Store = (*MemoryStore)(nil)
