package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGradio serves the submission endpoint and a scripted status
// channel. The script decides the body of the Nth poll; a nil entry
// kills the connection to simulate a transport failure.
type fakeGradio struct {
	polls  atomic.Int32
	script func(poll int, w http.ResponseWriter)
}

func (f *fakeGradio) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == submitPath {
			json.NewEncoder(w).Encode(map[string]string{"event_id": "abc123"})
			return
		}
		if strings.HasPrefix(r.URL.Path, submitPath+"/") {
			poll := int(f.polls.Add(1))
			f.script(poll, w)
			return
		}
		http.NotFound(w, r)
	})
}

func kill(w http.ResponseWriter) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err == nil {
		conn.Close()
	}
}

func newTestClient(baseURL string, attempts int) *InferenceClient {
	return NewInferenceClient(baseURL,
		WithMaxAttempts(attempts),
		WithPollInterval(time.Millisecond),
		WithRetryBackoff(time.Millisecond),
	)
}

func TestSubmitReturnsHandle(t *testing.T) {
	fake := &fakeGradio{script: func(int, http.ResponseWriter) {}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL, 1)
	handle, err := client.Submit(context.Background(), "some legal text")
	require.NoError(t, err)
	assert.Equal(t, "abc123", handle.EventID)
}

func TestSubmitWithoutEventID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"detail":"queue full"}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 1)
	_, err := client.Submit(context.Background(), "text")
	assert.ErrorIs(t, err, ErrNoJobID)
}

func TestAwaitResultParsesObjectPayload(t *testing.T) {
	fake := &fakeGradio{script: func(poll int, w http.ResponseWriter) {
		fmt.Fprint(w, "event: complete\ndata: [{\"label\":\"Decision\",\"sentence\":\"The appeal is dismissed.\"}]\n\n")
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL, 5)
	payload, err := client.AwaitResult(context.Background(), &JobHandle{EventID: "abc123"})
	require.NoError(t, err)
	require.Len(t, payload, 1)

	record, ok := payload[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Decision", record["label"])
	assert.Equal(t, int32(1), fake.polls.Load())
}

func TestAwaitResultLastDataLineWins(t *testing.T) {
	fake := &fakeGradio{script: func(poll int, w http.ResponseWriter) {
		fmt.Fprint(w, "event: generating\ndata: [\"partial\"]\nevent: complete\ndata: [\"**Facts** | A.\"]\n\n")
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL, 5)
	payload, err := client.AwaitResult(context.Background(), &JobHandle{EventID: "abc123"})
	require.NoError(t, err)
	require.Len(t, payload, 1)
	assert.Equal(t, "**Facts** | A.", payload[0])
}

func TestAwaitResultUnparseableArrayFallsBackToRawString(t *testing.T) {
	fake := &fakeGradio{script: func(poll int, w http.ResponseWriter) {
		fmt.Fprint(w, "data: [not, valid, json here]\n")
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL, 5)
	payload, err := client.AwaitResult(context.Background(), &JobHandle{EventID: "abc123"})
	require.NoError(t, err)
	require.Len(t, payload, 1)
	assert.Equal(t, "[not, valid, json here]", payload[0])
}

func TestAwaitResultErrorMarkerIsTerminal(t *testing.T) {
	fake := &fakeGradio{script: func(poll int, w http.ResponseWriter) {
		if poll < 3 {
			fmt.Fprint(w, "event: heartbeat\n\n")
			return
		}
		fmt.Fprint(w, "event: error\ndata: null\n\n")
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL, 10)
	_, err := client.AwaitResult(context.Background(), &JobHandle{EventID: "abc123"})
	assert.ErrorIs(t, err, ErrRemoteService)
	// Terminated on attempt 3, never reached attempt 4.
	assert.Equal(t, int32(3), fake.polls.Load())
}

func TestAwaitResultTimeoutAfterExactCap(t *testing.T) {
	fake := &fakeGradio{script: func(poll int, w http.ResponseWriter) {
		fmt.Fprint(w, "event: heartbeat\n\n")
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL, 60)
	_, err := client.AwaitResult(context.Background(), &JobHandle{EventID: "abc123"})
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, int32(60), fake.polls.Load())
}

func TestAwaitResultTransportFailureDoesNotAbort(t *testing.T) {
	fake := &fakeGradio{}
	fake.script = func(poll int, w http.ResponseWriter) {
		// Attempt 1 fails on both its primary request and its retry;
		// the loop must carry on to the next attempt.
		if poll <= 2 {
			kill(w)
			return
		}
		fmt.Fprint(w, "data: [\"**Decision** | Allowed.\"]\n")
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	payload, err := client.AwaitResult(context.Background(), &JobHandle{EventID: "abc123"})
	require.NoError(t, err)
	require.Len(t, payload, 1)
	assert.Equal(t, int32(3), fake.polls.Load())
}

func TestAwaitResultDoubleEncodedPayload(t *testing.T) {
	fake := &fakeGradio{script: func(poll int, w http.ResponseWriter) {
		// The service wraps the real answer in a JSON string inside
		// the data array.
		fmt.Fprint(w, `data: ["[[{\"label\":\"Facts\",\"sentence\":\"A.\"}]]"]`+"\n")
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL, 5)
	payload, err := client.AwaitResult(context.Background(), &JobHandle{EventID: "abc123"})
	require.NoError(t, err)

	sentences := NewNormalizer().Normalize(payload)
	require.Len(t, sentences, 1)
	assert.Equal(t, "A.", sentences[0].Text)
}

func TestUnescapeStatusText(t *testing.T) {
	assert.Equal(t, "line1\nline2", unescapeStatusText(`line1\nline2`))
	assert.Equal(t, `say "no"`, unescapeStatusText(`say \"no\"`))
	assert.Equal(t, "§12", unescapeStatusText(`§12`))
}
