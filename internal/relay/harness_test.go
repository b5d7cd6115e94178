package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"objrelay/internal/capability"
	"objrelay/internal/gateway"
	"objrelay/internal/objstore"

	"github.com/stretchr/testify/require"
)

// harness is a bucket served by the local gateway: the controller talks to
// the store directly, the agent only over HTTP.
type harness struct {
	store  *objstore.MemoryStore
	base   string
	client capability.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pub, priv, err := objstore.GenerateSigningKey()
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	base := srv.URL + "/o"
	store := objstore.NewMemoryStore(objstore.Signer{BaseURL: base, Key: priv})
	mux.Handle("/", gateway.NewRouter(gateway.Deps{
		Store:     store,
		Verifier:  objstore.Verifier{Key: pub},
		RateLimit: 1 << 20,
	}))
	return &harness{store: store, base: base, client: capability.Client{HTTP: srv.Client()}}
}

func (h *harness) controller(opts Options) *Controller {
	if opts.Channels == 0 {
		opts.Channels = 5
	}
	if opts.Interval == 0 {
		opts.Interval = 10 * time.Millisecond
	}
	return NewController(h.store, opts)
}

func (h *harness) agent(opts AgentOptions) *Agent {
	opts.PublicBaseURL = h.base
	if opts.Channels == 0 {
		opts.Channels = 5
	}
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Millisecond
	}
	return NewAgent(h.client, opts)
}

// channelTarget is the request key channel id's published capability
// authorizes.
func (h *harness) channelTarget(t *testing.T, id int) string {
	t.Helper()
	raw, err := h.store.Get(t.Context(), ChannelKey(id))
	require.NoError(t, err)
	c, err := objstore.ParseCapability(string(raw), h.base)
	require.NoError(t, err)
	require.Equal(t, objstore.MethodPut, c.Method)
	return c.Key
}

func (h *harness) keys(t *testing.T, prefix string) []string {
	t.Helper()
	keys, err := h.store.List(t.Context(), prefix)
	require.NoError(t, err)
	return keys
}
