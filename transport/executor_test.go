package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitmesh/dispatch/catalog"
)

// fakeTransport is a scripted Transport for exercising the Executor.
type fakeTransport struct {
	kind  Kind
	text  string
	err   *CallError
	calls atomic.Int32
	sleep time.Duration
}

func (f *fakeTransport) Kind() Kind { return f.kind }

func (f *fakeTransport) Call(ctx context.Context, agent catalog.AgentDescriptor, message, conversationID string) (string, *CallError) {
	f.calls.Add(1)
	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			return "", newCallError(ErrorKindTimeout, "attempt deadline: %v", ctx.Err())
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

var testAgent = catalog.AgentDescriptor{ID: "alerts", Endpoint: "http://alerts.local"}

func TestExecutorPreferredSucceeds(t *testing.T) {
	session := &fakeTransport{kind: KindSession, text: "fast answer"}
	httpT := &fakeTransport{kind: KindHTTP, text: "slow answer"}

	exec := NewExecutor(&ExecutorConfig{
		Preferred:      KindSession,
		SessionTimeout: time.Second,
		HTTPTimeout:    time.Second,
	}, []Transport{session, httpT}, nil)

	res := exec.Execute(context.Background(), testAgent, "any delays?", "conv-1")

	require.False(t, res.Failed())
	assert.Equal(t, "fast answer", res.Text)
	assert.Equal(t, KindSession, res.Served)
	assert.Equal(t, int32(1), session.calls.Load())
	assert.Equal(t, int32(0), httpT.calls.Load())
}

func TestExecutorFallsBackOnce(t *testing.T) {
	session := &fakeTransport{kind: KindSession, err: newCallError(ErrorKindConnection, "refused")}
	httpT := &fakeTransport{kind: KindHTTP, text: "served over http"}

	exec := NewExecutor(&ExecutorConfig{
		Preferred:      KindSession,
		SessionTimeout: time.Second,
		HTTPTimeout:    time.Second,
	}, []Transport{session, httpT}, nil)

	res := exec.Execute(context.Background(), testAgent, "any delays?", "conv-1")

	require.False(t, res.Failed())
	assert.Equal(t, "served over http", res.Text)
	assert.Equal(t, KindHTTP, res.Served)
	assert.Equal(t, int32(1), session.calls.Load())
	assert.Equal(t, int32(1), httpT.calls.Load())
}

func TestExecutorBothFailReportsLastError(t *testing.T) {
	session := &fakeTransport{kind: KindSession, err: newCallError(ErrorKindConnection, "refused")}
	httpT := &fakeTransport{kind: KindHTTP, err: newCallError(ErrorKindProtocol, "bad envelope")}

	exec := NewExecutor(&ExecutorConfig{
		Preferred:      KindSession,
		SessionTimeout: time.Second,
		HTTPTimeout:    time.Second,
	}, []Transport{session, httpT}, nil)

	res := exec.Execute(context.Background(), testAgent, "any delays?", "conv-1")

	require.True(t, res.Failed())
	assert.Equal(t, ErrorKindProtocol, res.Err.Kind)
	assert.Equal(t, KindHTTP, res.Served)
	assert.Equal(t, "alerts (failed)", res.Label())
}

func TestExecutorWithoutSessionTransport(t *testing.T) {
	httpT := &fakeTransport{kind: KindHTTP, text: "http only"}

	exec := NewExecutor(&ExecutorConfig{
		Preferred:      KindSession,
		SessionTimeout: time.Second,
		HTTPTimeout:    time.Second,
	}, []Transport{httpT}, nil)

	res := exec.Execute(context.Background(), testAgent, "any delays?", "conv-1")

	require.False(t, res.Failed())
	assert.Equal(t, "http only", res.Text)
	assert.Equal(t, KindHTTP, res.Served)
	assert.Equal(t, int32(1), httpT.calls.Load())
}

func TestExecutorNoTransports(t *testing.T) {
	exec := NewExecutor(nil, nil, nil)

	res := exec.Execute(context.Background(), testAgent, "hello", "conv-1")

	require.True(t, res.Failed())
	assert.Equal(t, ErrorKindUnavailable, res.Err.Kind)
}

func TestExecutorSkipsFallbackWhenBudgetExpired(t *testing.T) {
	session := &fakeTransport{kind: KindSession, sleep: 200 * time.Millisecond}
	httpT := &fakeTransport{kind: KindHTTP, text: "too late"}

	exec := NewExecutor(&ExecutorConfig{
		Preferred:      KindSession,
		SessionTimeout: time.Second,
		HTTPTimeout:    time.Second,
	}, []Transport{session, httpT}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := exec.Execute(ctx, testAgent, "any delays?", "conv-1")

	require.True(t, res.Failed())
	assert.Equal(t, ErrorKindTimeout, res.Err.Kind)
	assert.Equal(t, int32(0), httpT.calls.Load(),
		"fallback must not run once the request budget is gone")
}

func TestProperty_AtMostTwoAttempts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("an agent call makes at most two attempts and falls back only after a failure", prop.ForAll(
		func(preferSession, sessionFails, httpFails bool) bool {
			session := &fakeTransport{kind: KindSession, text: "s"}
			if sessionFails {
				session.err = newCallError(ErrorKindConnection, "down")
			}
			httpT := &fakeTransport{kind: KindHTTP, text: "h"}
			if httpFails {
				httpT.err = newCallError(ErrorKindConnection, "down")
			}

			preferred := KindHTTP
			if preferSession {
				preferred = KindSession
			}

			exec := NewExecutor(&ExecutorConfig{
				Preferred:      preferred,
				SessionTimeout: time.Second,
				HTTPTimeout:    time.Second,
			}, []Transport{session, httpT}, nil)

			res := exec.Execute(context.Background(), testAgent, "q", "c")

			total := session.calls.Load() + httpT.calls.Load()
			if total > 2 {
				return false
			}

			first := session
			second := httpT
			firstFails := sessionFails
			if preferred == KindHTTP {
				first, second = httpT, session
				firstFails = httpFails
			}

			if first.calls.Load() != 1 {
				return false
			}
			if firstFails {
				if second.calls.Load() != 1 {
					return false
				}
			} else if second.calls.Load() != 0 {
				return false
			}

			return res.Failed() == (sessionFails && httpFails)
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
