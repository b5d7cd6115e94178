package relay

import (
	"context"
	"errors"

	"objrelay/internal/objstore"
)

// Slot is a single-slot mailbox bound to one object key. It holds zero or
// one message: Put replaces whatever is there (newest wins, no backlog) and
// Take reads then deletes.
type Slot struct {
	store  objstore.Store
	key    string
	public bool
}

func NewSlot(store objstore.Store, key string, public bool) Slot {
	return Slot{store: store, key: key, public: public}
}

func (s Slot) Key() string { return s.key }

func (s Slot) Put(ctx context.Context, body []byte) error {
	return s.store.Put(ctx, s.key, body, s.public)
}

// Take returns the pending message, if any, and removes it. A message whose
// delete fails is not returned, so the same message is never handed out
// twice.
func (s Slot) Take(ctx context.Context) ([]byte, bool, error) {
	body, err := s.store.Get(ctx, s.key)
	if errors.Is(err, objstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := s.store.Delete(ctx, s.key); err != nil {
		return nil, false, err
	}
	return body, true, nil
}
