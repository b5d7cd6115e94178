package objstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	body   []byte
	public bool
}

// MemoryStore is an in-process Store. Capabilities it issues are signed the
// same way as LocalStore's, so a gateway can serve it.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	signer  Signer
}

func NewMemoryStore(signer Signer) *MemoryStore {
	return &MemoryStore{objects: map[string]memObject{}, signer: signer}
}

func (s *MemoryStore) Put(ctx context.Context, key string, body []byte, public bool) error {
	_ = ctx
	if err := validKey(key); err != nil {
		return err
	}
	b := append([]byte(nil), body...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memObject{body: b, public: public}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), o.body...), nil
}

func (s *MemoryStore) Public(ctx context.Context, key string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key].public, nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) Sign(key, method string, ttl time.Duration) (string, error) {
	return s.signer.Sign(key, method, ttl)
}

// Len is the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
