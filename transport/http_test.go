package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitmesh/dispatch/catalog"
)

func TestHTTPTransportSuccess(t *testing.T) {
	var gotEnvelope requestEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/message", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEnvelope))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"response","payload":{"text":"two delays on the red line"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil, nil)
	agent := catalog.AgentDescriptor{ID: "alerts", Endpoint: srv.URL}

	text, cerr := tr.Call(context.Background(), agent, "any delays?", "conv-7")

	require.Nil(t, cerr)
	assert.Equal(t, "two delays on the red line", text)
	assert.Equal(t, "request", gotEnvelope.Type)
	assert.Equal(t, "any delays?", gotEnvelope.Payload.Message)
	assert.Equal(t, "conv-7", gotEnvelope.Payload.ConversationID)
	assert.Equal(t, "dispatch", gotEnvelope.Metadata.Source)
	assert.Equal(t, "alerts", gotEnvelope.Metadata.AgentName)
}

func TestHTTPTransportEmptyTextIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"response","payload":{"text":""}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil, nil)
	agent := catalog.AgentDescriptor{ID: "alerts", Endpoint: srv.URL}

	text, cerr := tr.Call(context.Background(), agent, "ping", "conv-1")

	require.Nil(t, cerr)
	assert.Empty(t, text)
}

func TestHTTPTransportErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"error","payload":{"message":"upstream feed is down"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil, nil)
	agent := catalog.AgentDescriptor{ID: "alerts", Endpoint: srv.URL}

	_, cerr := tr.Call(context.Background(), agent, "any delays?", "conv-1")

	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindProtocol, cerr.Kind)
	assert.Contains(t, cerr.Detail, "upstream feed is down")
}

func TestHTTPTransportUnknownEnvelopeFailsClosed(t *testing.T) {
	cases := map[string]string{
		"unknown type":    `{"type":"status","payload":{"text":"ok"}}`,
		"missing payload": `{"type":"response"}`,
		"missing text":    `{"type":"response","payload":{}}`,
		"not json":        `pong`,
		"array payload":   `{"type":"response","payload":[1,2]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			tr := NewHTTPTransport(nil, nil)
			agent := catalog.AgentDescriptor{ID: "alerts", Endpoint: srv.URL}

			_, cerr := tr.Call(context.Background(), agent, "q", "c")

			require.NotNil(t, cerr)
			assert.Equal(t, ErrorKindProtocol, cerr.Kind)
		})
	}
}

func TestHTTPTransportNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil, nil)
	agent := catalog.AgentDescriptor{ID: "alerts", Endpoint: srv.URL}

	_, cerr := tr.Call(context.Background(), agent, "q", "c")

	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindProtocol, cerr.Kind)
}

func TestHTTPTransportConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	tr := NewHTTPTransport(nil, nil)
	agent := catalog.AgentDescriptor{ID: "alerts", Endpoint: srv.URL}

	_, cerr := tr.Call(context.Background(), agent, "q", "c")

	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindConnection, cerr.Kind)
}

func TestHTTPTransportTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only notices the client disconnect (and cancels the
		// request context) once the body has been consumed.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil, nil)
	agent := catalog.AgentDescriptor{ID: "alerts", Endpoint: srv.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, cerr := tr.Call(ctx, agent, "q", "c")

	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindTimeout, cerr.Kind)
}

func TestHTTPTransportMissingEndpoint(t *testing.T) {
	tr := NewHTTPTransport(nil, nil)

	_, cerr := tr.Call(context.Background(), catalog.AgentDescriptor{ID: "ghost"}, "q", "c")

	require.NotNil(t, cerr)
	assert.Equal(t, ErrorKindUnavailable, cerr.Kind)
}
