package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"objrelay/internal/keys"
	"objrelay/internal/objstore"
)

// Directory is the fixed set of public rendezvous slots. Each slot holds one
// upload capability for a request key that no earlier slot generation used.
type Directory struct {
	store    objstore.Store
	channels int
	ttl      time.Duration
	newNonce func() string
}

func NewDirectory(store objstore.Store, channels int, ttl time.Duration) *Directory {
	return &Directory{
		store:    store,
		channels: channels,
		ttl:      ttl,
		newNonce: keys.NewRequestNonce,
	}
}

func (d *Directory) Channels() int { return d.channels }

// InitChannel publishes a fresh request capability on channel id, replacing
// the previous one. It returns the request key the new capability targets.
func (d *Directory) InitChannel(ctx context.Context, id int) (string, error) {
	if id < 0 || id >= d.channels {
		return "", fmt.Errorf("channel %d out of range [0,%d)", id, d.channels)
	}
	requestKey := RequestKey(d.newNonce())
	capURL, err := d.store.Sign(requestKey, objstore.MethodPut, d.ttl)
	if err != nil {
		return "", fmt.Errorf("sign channel %d: %w", id, err)
	}
	if err := d.store.Put(ctx, ChannelKey(id), []byte(capURL), true); err != nil {
		return "", fmt.Errorf("publish channel %d: %w", id, err)
	}
	return requestKey, nil
}

// InitAll reissues every channel, continuing past failures.
func (d *Directory) InitAll(ctx context.Context) error {
	var errs []error
	for id := 0; id < d.channels; id++ {
		if _, err := d.InitChannel(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
