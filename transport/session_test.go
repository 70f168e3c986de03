package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitmesh/dispatch/catalog"
)

// newAgentSessionServer runs a WebSocket agent that answers every request
// envelope with the given raw reply.
func newAgentSessionServer(t *testing.T, reply string, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var env requestEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				return
			}
			if requests != nil {
				requests.Add(1)
			}
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
	}))
}

func TestSessionTransportCall(t *testing.T) {
	var requests atomic.Int32
	srv := newAgentSessionServer(t, `{"type":"response","payload":{"text":"next train in 4 minutes"}}`, &requests)
	defer srv.Close()

	tr := NewSessionTransport(&SessionConfig{
		Endpoints:   map[string]string{"stops": srv.URL},
		DialTimeout: time.Second,
	}, nil)
	defer tr.Close()

	require.NoError(t, tr.Init(context.Background()))

	agent := catalog.AgentDescriptor{ID: "stops", Endpoint: "http://unused"}
	text, cerr := tr.Call(context.Background(), agent, "when is the next train?", "conv-2")

	require.Nil(t, cerr)
	assert.Equal(t, "next train in 4 minutes", text)
	assert.Equal(t, int32(1), requests.Load())
}

func TestSessionTransportReusesConnection(t *testing.T) {
	var requests atomic.Int32
	srv := newAgentSessionServer(t, `{"type":"response","payload":{"text":"ok"}}`, &requests)
	defer srv.Close()

	tr := NewSessionTransport(&SessionConfig{
		Endpoints: map[string]string{"stops": srv.URL},
	}, nil)
	defer tr.Close()

	require.NoError(t, tr.Init(context.Background()))

	agent := catalog.AgentDescriptor{ID: "stops"}
	for i := 0; i < 3; i++ {
		_, cerr := tr.Call(context.Background(), agent, "q", "c")
		require.Nil(t, cerr)
	}
	assert.Equal(t, int32(3), requests.Load())
}

func TestSessionTransportNoSessionConfigured(t *testing.T) {
	tr := NewSessionTransport(nil, nil)
	defer tr.Close()

	_, cerr := tr.Call(context.Background(), catalog.AgentDescriptor{ID: "alerts"}, "q", "c")

	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindUnavailable, cerr.Kind)
}

func TestSessionTransportErrorEnvelope(t *testing.T) {
	srv := newAgentSessionServer(t, `{"type":"error","payload":{"message":"feed offline"}}`, nil)
	defer srv.Close()

	tr := NewSessionTransport(&SessionConfig{
		Endpoints: map[string]string{"alerts": srv.URL},
	}, nil)
	defer tr.Close()

	require.NoError(t, tr.Init(context.Background()))

	_, cerr := tr.Call(context.Background(), catalog.AgentDescriptor{ID: "alerts"}, "q", "c")

	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindProtocol, cerr.Kind)
	assert.Contains(t, cerr.Detail, "feed offline")
}

func TestSessionTransportInitFailureLeavesTransportUsable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	tr := NewSessionTransport(&SessionConfig{
		Endpoints:   map[string]string{"alerts": srv.URL},
		DialTimeout: 200 * time.Millisecond,
	}, nil)
	defer tr.Close()

	require.Error(t, tr.Init(context.Background()))

	_, cerr := tr.Call(context.Background(), catalog.AgentDescriptor{ID: "alerts"}, "q", "c")
	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindConnection, cerr.Kind)
}

func TestSessionTransportClosedRejectsCalls(t *testing.T) {
	tr := NewSessionTransport(nil, nil)
	require.NoError(t, tr.Close())

	_, cerr := tr.Call(context.Background(), catalog.AgentDescriptor{ID: "alerts"}, "q", "c")

	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindUnavailable, cerr.Kind)
}
