package dapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"physdapp/internal/protocol"
	"physdapp/internal/rollup"
	"physdapp/internal/sim/tuning"
)

// hostServer is a scripted rollup host: each /finish pops one response.
type hostServer struct {
	mu     sync.Mutex
	script []string // "" means 202
	calls  map[string][]string
	cancel context.CancelFunc
}

func (h *hostServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]string
	_ = json.Unmarshal(raw, &body)

	h.mu.Lock()
	defer h.mu.Unlock()
	switch r.URL.Path {
	case "/finish":
		h.calls["/finish"] = append(h.calls["/finish"], body["status"])
		if len(h.script) == 0 {
			h.cancel()
			w.WriteHeader(http.StatusAccepted)
			return
		}
		next := h.script[0]
		h.script = h.script[1:]
		if next == "" {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(next))
	case "/notice", "/report":
		h.calls[r.URL.Path] = append(h.calls[r.URL.Path], body["payload"])
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *hostServer) get(path string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls[path]...)
}

func rollupJSON(t *testing.T, r *protocol.RollupRequest) string {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	return string(b)
}

func TestRunAgainstHTTPHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	add := advance(addBody)
	h := &hostServer{
		script: []string{
			"",
			rollupJSON(t, inspect("0xabcd")),
			"",
			rollupJSON(t, add),
			rollupJSON(t, advance(`{"action":"spin"}`)),
		},
		calls:  map[string][]string{},
		cancel: cancel,
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	client, err := rollup.New(srv.URL, rollup.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	tune := tuning.Defaults()
	tune.Realtime = false
	app, err := New(client, tune, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	err = app.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"0xabcd"}, h.get("/report"))
	assert.Equal(t, []string{add.Data.Payload, protocol.StringToHex(`{"action":"spin"}`)}, h.get("/notice"))
	assert.Equal(t, []string{"accept", "accept", "accept", "accept", "accept", "reject"}, h.get("/finish"))
	assert.Equal(t, 2, app.World().BodyCount())
	assert.Equal(t, uint64(3), app.Cycle())
}

func TestNoPendingWorkCausesNoPublishCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &hostServer{script: []string{"", "", ""}, calls: map[string][]string{}, cancel: cancel}
	srv := httptest.NewServer(h)
	defer srv.Close()

	client, err := rollup.New(srv.URL, rollup.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	app, err := New(client, tuning.Defaults(), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.ErrorIs(t, app.Run(ctx), context.Canceled)
	assert.Len(t, h.get("/finish"), 4)
	assert.Empty(t, h.get("/notice"))
	assert.Empty(t, h.get("/report"))
}
