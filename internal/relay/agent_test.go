package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	mu       sync.Mutex
	commands []string
}

func (e *recordingExecutor) Execute(_ context.Context, command string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, command)
	return []byte(strings.TrimPrefix(command, "echo ") + "\n")
}

func (e *recordingExecutor) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var results []Result
	ctrl := h.controller(Options{Channels: 5, OnResult: func(r Result) { results = append(results, r) }})
	require.NoError(t, ctrl.Reset(ctx))

	agent := h.agent(AgentOptions{
		PickChannel:  func(int) int { return 2 },
		NewSessionID: func() string { return "s1" },
	})

	sid, err := agent.RequestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", sid)
	assert.Len(t, h.keys(t, RequestPrefix), 1)

	_, err = ctrl.Tick(ctx)
	require.NoError(t, err)

	// one poll is enough once the controller has ticked
	token, err := agent.AwaitGrant(ctx, sid, RetryPolicy{Interval: time.Millisecond, MaxAttempts: 1})
	require.NoError(t, err)

	n, err := ctrl.SendCommand(ctx, "echo hi")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cmd, ok, err := agent.PollCommand(ctx, sid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "echo hi", cmd)
	assert.Empty(t, h.keys(t, InboundPrefix), "inbound mailbox deleted by the agent")

	_, ok, err = agent.PollCommand(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok, "a command is delivered once")

	require.NoError(t, agent.ReportResult(ctx, token, []byte("hi\n")))
	assert.Equal(t, []string{OutboundKey(sid)}, h.keys(t, OutboundPrefix))

	drained, err := ctrl.DrainResults(ctx)
	require.NoError(t, err)
	require.Len(t, drained, 1)
	assert.Equal(t, "s1", drained[0].SessionID)
	assert.Equal(t, "hi\n", string(drained[0].Output))
	assert.Len(t, results, 1)
	assert.Empty(t, h.keys(t, OutboundPrefix))
}

func TestSecondCommandReplacesFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ctrl := h.controller(Options{})
	require.NoError(t, ctrl.Reset(ctx))

	agent := h.agent(AgentOptions{})
	sess := establish(t, ctrl, agent)

	_, err := ctrl.SendCommand(ctx, "echo one")
	require.NoError(t, err)
	_, err = ctrl.SendCommand(ctx, "echo two")
	require.NoError(t, err)

	cmd, ok, err := agent.PollCommand(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "echo two", cmd)

	_, ok, err = agent.PollCommand(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAgentTokenOnlyWritesOwnMailbox(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ctrl := h.controller(Options{})
	require.NoError(t, ctrl.Reset(ctx))
	agent := h.agent(AgentOptions{})
	sess := establish(t, ctrl, agent)

	// the token is an upload capability for this session's outbound key only
	assert.Error(t, h.client.Invoke(ctx, "DELETE", sess.OutboundToken, nil))
	other := strings.Replace(sess.OutboundToken, OutboundKey(sess.ID), OutboundKey("someone-else"), 1)
	assert.Error(t, h.client.Invoke(ctx, "PUT", other, []byte("x")))
	assert.Empty(t, h.keys(t, OutboundPrefix))
}

func TestAwaitGrantGivesUp(t *testing.T) {
	h := newHarness(t)
	agent := h.agent(AgentOptions{})

	_, err := agent.AwaitGrant(context.Background(), "nobody", RetryPolicy{Interval: time.Millisecond, MaxAttempts: 3})
	assert.ErrorIs(t, err, errGrantPending)

	_, err = agent.AwaitGrant(context.Background(), "nobody", RetryPolicy{Interval: time.Millisecond, Deadline: 20 * time.Millisecond})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = agent.AwaitGrant(ctx, "nobody", RetryPolicy{Interval: time.Millisecond})
	assert.Error(t, err)
}

func TestRequestSessionWithoutChannels(t *testing.T) {
	h := newHarness(t)
	agent := h.agent(AgentOptions{})
	_, err := agent.RequestSession(context.Background())
	assert.ErrorIs(t, err, errChannelUnavailable)
}

func TestEstablishRetriesAfterGrantTimeout(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctrl := h.controller(Options{Channels: 1})
	require.NoError(t, ctrl.Reset(ctx))

	ids := []string{"first", "second"}
	var mu sync.Mutex
	agent := h.agent(AgentOptions{
		Channels:     1,
		GrantTimeout: 30 * time.Millisecond,
		NewSessionID: func() string {
			mu.Lock()
			defer mu.Unlock()
			id := ids[0]
			if len(ids) > 1 {
				ids = ids[1:]
			}
			return id
		},
	})

	type outcome struct {
		sess Session
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := agent.Establish(ctx)
		done <- outcome{s, err}
	}()

	// the first request is lost before the controller sees it
	require.Eventually(t, func() bool {
		keys, _ := h.store.List(ctx, RequestPrefix)
		if len(keys) == 0 {
			return false
		}
		return h.store.Delete(ctx, keys[0]) == nil
	}, time.Second, time.Millisecond)
	require.NoError(t, ctrl.Directory().InitAll(ctx))

	// the agent times out, requests again, and this one is granted
	require.Eventually(t, func() bool {
		granted, _ := ctrl.ProcessSessionRequests(ctx)
		return len(granted) > 0
	}, 2*time.Second, 5*time.Millisecond)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, "second", out.sess.ID)
	assert.NotEmpty(t, out.sess.OutboundToken)
}

func TestAgentRunServesCommands(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var results []Result
	ctrl := h.controller(Options{
		Interval: 5 * time.Millisecond,
		OnResult: func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r)
		},
	})
	require.NoError(t, ctrl.Reset(ctx))

	exec := &recordingExecutor{}
	agent := h.agent(AgentOptions{Executor: exec})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = ctrl.Run(ctx) }()
	go func() { defer wg.Done(); _ = agent.Run(ctx) }()

	require.Eventually(t, func() bool {
		keys, _ := h.store.List(ctx, GrantPrefix)
		return len(keys) == 1
	}, 2*time.Second, 5*time.Millisecond)
	_, err := ctrl.SendCommand(ctx, "echo relayed")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	assert.Equal(t, []string{"echo relayed"}, exec.seen())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "relayed\n", string(results[0].Output))
}

func TestCommandExecutor(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "hi\n", string(CommandExecutor{}.Execute(ctx, "echo hi")))
	assert.Equal(t, "a b\n", string(CommandExecutor{Shell: "/bin/sh"}.Execute(ctx, "echo a b")))
	assert.Equal(t, "empty command\n", string(CommandExecutor{}.Execute(ctx, "   ")))

	out := string(CommandExecutor{}.Execute(ctx, "definitely-not-a-binary-xyz"))
	assert.Contains(t, out, "executable file not found")
}

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryPolicy{Interval: time.Millisecond}.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func establish(t *testing.T, ctrl *Controller, agent *Agent) Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan Session, 1)
	errs := make(chan error, 1)
	go func() {
		s, err := agent.Establish(ctx)
		if err != nil {
			errs <- err
			return
		}
		done <- s
	}()
	for {
		select {
		case s := <-done:
			return s
		case err := <-errs:
			t.Fatalf("establish: %v", err)
		case <-time.After(5 * time.Millisecond):
			_, _ = ctrl.ProcessSessionRequests(ctx)
		}
	}
}
