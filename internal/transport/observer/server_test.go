package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"physdapp/internal/observerproto"
	"physdapp/internal/sim/physics"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(observerproto.WorldParams{StepRateHz: 240, StepsPerAdd: 1200, Gravity: [3]float64{0, 0, -10}}, zerolog.Nop())
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func testFrame(step uint64) observerproto.FrameMsg {
	return observerproto.NewFrame(step, float64(step)/240, []physics.Body{
		{ID: 0, Shape: physics.ShapePlane},
		{ID: 1, Shape: physics.ShapeSphere, Mass: 1, Radius: 0.1, Pos: physics.Vec3{0, 0, 1}},
		{ID: 2, Shape: physics.ShapeSphere, Mass: 1, Radius: 0.1, Pos: physics.Vec3{1, 0, 1}},
	})
}

func TestBootstrap(t *testing.T) {
	s, hs := newTestServer(t)

	get := func() observerproto.BootstrapResponse {
		resp, err := http.Get(hs.URL + "/v1/observer/bootstrap")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out observerproto.BootstrapResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	b := get()
	assert.Equal(t, observerproto.Version, b.ProtocolVersion)
	assert.Equal(t, 240, b.WorldParams.StepRateHz)
	assert.Nil(t, b.LastFrame)

	s.Publish(testFrame(8))
	b = get()
	require.NotNil(t, b.LastFrame)
	assert.Equal(t, uint64(8), b.LastFrame.Step)

	resp, err := http.Post(hs.URL+"/v1/observer/bootstrap", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWS_SubscribeAndReceiveFrames(t *testing.T) {
	s, hs := newTestServer(t)
	s.Publish(testFrame(8))

	conn := dial(t, hs)
	require.NoError(t, conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		MaxBodies:       2,
	}))
	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first observerproto.FrameMsg
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(8), first.Step)
	assert.Len(t, first.Bodies, 2)

	s.Publish(testFrame(16))
	var next observerproto.FrameMsg
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, uint64(16), next.Step)
	assert.Equal(t, observerproto.TypeFrame, next.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_RejectsBadHandshake(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "HELLO"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Equal(t, 0, s.Subscribers())
}

func TestPublish_NoSubscribersDoesNotBlock(t *testing.T) {
	s := NewServer(observerproto.WorldParams{}, zerolog.Nop())
	for i := 0; i < 1000; i++ {
		s.Publish(testFrame(uint64(i)))
	}
	assert.Equal(t, 0, s.Subscribers())
}

func TestIsLoopbackRemote(t *testing.T) {
	assert.True(t, isLoopbackRemote("127.0.0.1:5555"))
	assert.True(t, isLoopbackRemote("[::1]:5555"))
	assert.False(t, isLoopbackRemote("10.0.0.2:5555"))
	assert.False(t, isLoopbackRemote("garbage"))
}
