package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"objrelay/internal/keys"
	"objrelay/internal/objstore"
)

var (
	errChannelUnavailable = errors.New("channel unavailable")
	errGrantPending       = errors.New("grant not yet available")
)

// Transport is all the agent has: unauthenticated reads of public objects
// and calls through capability URLs.
type Transport interface {
	Fetch(ctx context.Context, url string) (body []byte, ok bool, err error)
	Invoke(ctx context.Context, method, capURL string, body []byte) error
}

// Executor runs one command synchronously and returns whatever it printed.
type Executor interface {
	Execute(ctx context.Context, command string) []byte
}

type AgentOptions struct {
	// PublicBaseURL is where public objects are read from.
	PublicBaseURL string
	Channels      int
	// Interval between command polls and between grant polls.
	Interval time.Duration
	// GrantTimeout bounds one wait for a grant; the agent then requests a
	// new session. Zero waits forever.
	GrantTimeout time.Duration
	Executor     Executor

	PickChannel  func(n int) int
	NewSessionID func() string
}

// Session is what an agent holds once granted.
type Session struct {
	ID            string
	OutboundToken string
}

type Agent struct {
	transport    Transport
	baseURL      string
	channels     int
	interval     time.Duration
	grantTimeout time.Duration
	exec         Executor
	pickChannel  func(n int) int
	newSessionID func() string
}

func NewAgent(t Transport, opts AgentOptions) *Agent {
	a := &Agent{
		transport:    t,
		baseURL:      opts.PublicBaseURL,
		channels:     opts.Channels,
		interval:     opts.Interval,
		grantTimeout: opts.GrantTimeout,
		exec:         opts.Executor,
		pickChannel:  opts.PickChannel,
		newSessionID: opts.NewSessionID,
	}
	if a.channels <= 0 {
		a.channels = 5
	}
	if a.interval <= 0 {
		a.interval = time.Second
	}
	if a.exec == nil {
		a.exec = CommandExecutor{}
	}
	if a.pickChannel == nil {
		a.pickChannel = rand.IntN
	}
	if a.newSessionID == nil {
		a.newSessionID = keys.NewSessionID
	}
	return a
}

func (a *Agent) url(key string) string {
	return objstore.PublicURL(a.baseURL, key)
}

// RequestSession writes a session request through a randomly chosen
// channel and returns the new session id. It does not wait for the grant.
func (a *Agent) RequestSession(ctx context.Context) (string, error) {
	channel := a.pickChannel(a.channels)
	body, ok, err := a.transport.Fetch(ctx, a.url(ChannelKey(channel)))
	if err != nil {
		return "", fmt.Errorf("read channel %d: %w", channel, err)
	}
	capURL := strings.TrimSpace(string(body))
	if !ok || capURL == "" {
		return "", fmt.Errorf("channel %d: %w", channel, errChannelUnavailable)
	}

	sessionID := a.newSessionID()
	if err := a.transport.Invoke(ctx, http.MethodPut, capURL, encodeRequest(channel, sessionID)); err != nil {
		return "", fmt.Errorf("write request on channel %d: %w", channel, err)
	}
	return sessionID, nil
}

// AwaitGrant polls the session's grant key until it holds the outbound
// token. A missing grant and an unknown session look the same, so this
// only ends on success, ctx, or the policy giving up.
func (a *Agent) AwaitGrant(ctx context.Context, sessionID string, policy RetryPolicy) (string, error) {
	var token string
	err := policy.Do(ctx, func() error {
		body, ok, err := a.transport.Fetch(ctx, a.url(GrantKey(sessionID)))
		if err != nil {
			return err
		}
		t := strings.TrimSpace(string(body))
		if !ok || t == "" {
			return errGrantPending
		}
		token = t
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Establish requests a session and waits for its grant, starting over with
// a new session whenever a grant wait times out.
func (a *Agent) Establish(ctx context.Context) (Session, error) {
	for {
		var sessionID string
		err := RetryPolicy{Interval: a.interval}.Do(ctx, func() error {
			id, err := a.RequestSession(ctx)
			if err != nil {
				log.Printf("relay: request session: %v", err)
				return err
			}
			sessionID = id
			return nil
		})
		if err != nil {
			return Session{}, err
		}

		token, err := a.AwaitGrant(ctx, sessionID, RetryPolicy{Interval: a.interval, Deadline: a.grantTimeout})
		if err == nil {
			return Session{ID: sessionID, OutboundToken: token}, nil
		}
		if ctx.Err() != nil {
			return Session{}, ctx.Err()
		}
		log.Printf("relay: no grant for session %s: %v; requesting a new one", sessionID, err)
	}
}

// PollCommand takes the pending command from the session's inbound
// mailbox, deleting it through the capability it carries. ok is false when
// no command is waiting. A command is only returned once its delete
// succeeded.
func (a *Agent) PollCommand(ctx context.Context, sessionID string) (command string, ok bool, err error) {
	body, ok, err := a.transport.Fetch(ctx, a.url(InboundKey(sessionID)))
	if err != nil || !ok {
		return "", false, err
	}
	deleteCap, command, err := decodeCommand(body)
	if err != nil {
		return "", false, err
	}
	if err := a.transport.Invoke(ctx, http.MethodDelete, deleteCap, nil); err != nil {
		return "", false, fmt.Errorf("delete command: %w", err)
	}
	return command, true, nil
}

// ReportResult uploads output to the outbound mailbox, replacing any result
// the controller has not drained yet.
func (a *Agent) ReportResult(ctx context.Context, token string, output []byte) error {
	if output == nil {
		output = []byte{}
	}
	return a.transport.Invoke(ctx, http.MethodPut, token, output)
}

// Run establishes a session and then serves commands one at a time until
// ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	log.Printf("relay: agent started, requesting session")
	sess, err := a.Establish(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Printf("relay: session %s established, waiting for commands", sess.ID)

	for {
		if err := sleep(ctx, a.interval); err != nil {
			return nil
		}
		command, ok, err := a.PollCommand(ctx, sess.ID)
		if err != nil {
			log.Printf("relay: poll command: %v", err)
			continue
		}
		if !ok {
			continue
		}
		log.Printf("relay: received command %q", command)
		output := a.exec.Execute(ctx, command)
		if err := a.ReportResult(ctx, sess.OutboundToken, output); err != nil {
			log.Printf("relay: report result: %v", err)
		}
	}
}
