package relay

import (
	"context"
	"errors"
	"fmt"
	"log"

	"objrelay/internal/objstore"
)

// ProcessSessionRequests consumes every pending session request: each is
// deleted before it takes effect, its channel is reissued so the consumed
// capability is never handed out again, and the session is granted an
// upload capability for its outbound mailbox. It returns the granted
// session ids.
//
// A malformed request is consumed and reported in the returned error; it
// never produces a grant.
func (c *Controller) ProcessSessionRequests(ctx context.Context) ([]string, error) {
	keys, err := c.store.List(ctx, RequestPrefix)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	var errs []error
	var granted []string
	for _, k := range keys {
		body, ok, err := NewSlot(c.store, k, false).Take(ctx)
		if err != nil {
			// Left in place; picked up again next tick.
			errs = append(errs, fmt.Errorf("take %s: %w", k, err))
			continue
		}
		if !ok {
			continue
		}

		channel, sessionID, err := decodeRequest(body, c.dir.Channels())
		if err != nil {
			errs = append(errs, fmt.Errorf("request %s: %w", k, err))
			continue
		}

		if _, err := c.dir.InitChannel(ctx, channel); err != nil {
			// The grant still goes out; rotation will reissue the channel.
			log.Printf("relay: reinit channel %d: %v", channel, err)
		}

		if err := c.grant(ctx, sessionID); err != nil {
			errs = append(errs, fmt.Errorf("grant %s: %w", sessionID, err))
			continue
		}
		granted = append(granted, sessionID)
		if c.onSession != nil {
			c.onSession(sessionID)
		}
	}
	return granted, errors.Join(errs...)
}

func (c *Controller) grant(ctx context.Context, sessionID string) error {
	token, err := c.store.Sign(OutboundKey(sessionID), objstore.MethodPut, c.ttl)
	if err != nil {
		return err
	}
	return NewSlot(c.store, GrantKey(sessionID), true).Put(ctx, []byte(token))
}
