package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"objrelay/internal/objstore"
)

// Result is one agent's output, drained from its outbound mailbox.
type Result struct {
	SessionID string
	Output    []byte
}

type Options struct {
	Channels      int
	TTL           time.Duration
	RefreshMargin time.Duration
	Interval      time.Duration

	// Called for every granted session and every drained result. Both run on
	// the poll loop.
	OnSession func(sessionID string)
	OnResult  func(Result)

	Now func() time.Time
}

// Controller owns the bucket credentials. Its poll loop is the only writer
// of channels and grants; SendCommand may run concurrently from another
// goroutine since it only touches inbound mailboxes.
type Controller struct {
	store     objstore.Store
	dir       *Directory
	sched     *Scheduler
	ttl       time.Duration
	margin    time.Duration
	interval  time.Duration
	onSession func(string)
	onResult  func(Result)
	now       func() time.Time
}

func NewController(store objstore.Store, opts Options) *Controller {
	if opts.Channels <= 0 {
		opts.Channels = 5
	}
	if opts.TTL <= 0 {
		opts.TTL = 25 * time.Hour
	}
	if opts.RefreshMargin <= 0 || opts.RefreshMargin >= opts.TTL {
		opts.RefreshMargin = opts.TTL / 25
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		store:     store,
		dir:       NewDirectory(store, opts.Channels, opts.TTL),
		ttl:       opts.TTL,
		margin:    opts.RefreshMargin,
		interval:  opts.Interval,
		onSession: opts.OnSession,
		onResult:  opts.OnResult,
		now:       opts.Now,
	}
	c.sched = NewScheduler(c.ttl, c.margin, c.interval, c.now())
	return c
}

func (c *Controller) Directory() *Directory { return c.dir }

func (c *Controller) Scheduler() *Scheduler { return c.sched }

// Reset wipes every session (requests, grants and both mailboxes) and
// reissues all channels. No session survives it.
func (c *Controller) Reset(ctx context.Context) error {
	var errs []error
	for _, prefix := range []string{OutboundPrefix, InboundPrefix, GrantPrefix, RequestPrefix} {
		if err := c.deletePrefix(ctx, prefix); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.dir.InitAll(ctx); err != nil {
		errs = append(errs, err)
	}
	c.sched = NewScheduler(c.ttl, c.margin, c.interval, c.now())
	return errors.Join(errs...)
}

func (c *Controller) deletePrefix(ctx context.Context, prefix string) error {
	keys, err := c.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}
	var errs []error
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// RotateChannels reissues every channel capability, used or not.
func (c *Controller) RotateChannels(ctx context.Context) error {
	return c.dir.InitAll(ctx)
}

// Tick runs one poll-loop iteration: either a rotation or a poll, never
// both.
func (c *Controller) Tick(ctx context.Context) (Phase, error) {
	phase := c.sched.Next(c.now())
	if phase == Rotating {
		return phase, c.RotateChannels(ctx)
	}
	_, reqErr := c.ProcessSessionRequests(ctx)
	_, resErr := c.DrainResults(ctx)
	return phase, errors.Join(reqErr, resErr)
}

// Run ticks every interval until ctx is done. Store failures are logged and
// retried on the next tick.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			phase, err := c.Tick(ctx)
			if phase == Rotating && err == nil {
				log.Printf("relay: rotated %d channels", c.dir.Channels())
			}
			if err != nil && ctx.Err() == nil {
				log.Printf("relay: %s tick: %v", phase, err)
			}
		}
	}
}

// SendCommand deposits command in the inbound mailbox of every granted
// session, replacing any command not yet picked up. It returns how many
// sessions were addressed.
func (c *Controller) SendCommand(ctx context.Context, command string) (int, error) {
	grants, err := c.store.List(ctx, GrantPrefix)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	var errs []error
	sent := 0
	for _, g := range grants {
		sessionID := strings.TrimPrefix(g, GrantPrefix)
		if sessionID == "" {
			continue
		}
		inbound := InboundKey(sessionID)
		// Agents hold no credentials, so each message carries its own delete.
		deleteCap, err := c.store.Sign(inbound, objstore.MethodDelete, c.ttl)
		if err != nil {
			errs = append(errs, fmt.Errorf("sign delete for %s: %w", sessionID, err))
			continue
		}
		if err := NewSlot(c.store, inbound, true).Put(ctx, encodeCommand(deleteCap, command)); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", sessionID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// DrainResults takes every pending agent output.
func (c *Controller) DrainResults(ctx context.Context) ([]Result, error) {
	keys, err := c.store.List(ctx, OutboundPrefix)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	var errs []error
	var out []Result
	for _, k := range keys {
		body, ok, err := NewSlot(c.store, k, false).Take(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("take %s: %w", k, err))
			continue
		}
		if !ok {
			continue
		}
		r := Result{SessionID: strings.TrimPrefix(k, OutboundPrefix), Output: body}
		out = append(out, r)
		if c.onResult != nil {
			c.onResult(r)
		}
	}
	return out, errors.Join(errs...)
}
