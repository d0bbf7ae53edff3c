package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homico/internal/config"
)

func TestQueueRunsEffects(t *testing.T) {
	q := NewQueue(3, 10, time.Second, nil)
	q.Start()

	var (
		mu   sync.Mutex
		seen []string
	)
	for _, id := range []string{"a", "b", "c", "d"} {
		id := id
		q.Run(context.Background(), "notify", id, func(context.Context) error {
			mu.Lock()
			seen = append(seen, id)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, q.Shutdown(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, seen)
}

func TestQueueSurvivesFailuresAndPanics(t *testing.T) {
	q := NewQueue(1, 10, time.Second, nil)
	q.Start()

	var ran atomic.Int32
	q.Run(context.Background(), "sms", "job-1", func(context.Context) error {
		ran.Add(1)
		return errors.New("boom")
	})
	q.Run(context.Background(), "sms", "job-1", func(context.Context) error {
		ran.Add(1)
		panic("sink exploded")
	})
	q.Run(context.Background(), "sms", "job-1", func(context.Context) error {
		ran.Add(1)
		return nil
	})
	require.NoError(t, q.Shutdown(context.Background()))
	assert.Equal(t, int32(3), ran.Load())
}

func TestQueueIgnoresCallerCancellation(t *testing.T) {
	q := NewQueue(1, 1, time.Second, nil)
	q.Start()

	ctx, cancel := context.WithCancel(context.Background())
	var ctxErr error
	q.Run(ctx, "notify", "job-1", func(ctx context.Context) error {
		ctxErr = ctx.Err()
		return nil
	})
	cancel()
	require.NoError(t, q.Shutdown(context.Background()))
	assert.NoError(t, ctxErr)
}

func TestQueueDropsAfterShutdown(t *testing.T) {
	q := NewQueue(1, 1, time.Second, nil)
	q.Start()
	require.NoError(t, q.Shutdown(context.Background()))

	called := false
	q.Run(context.Background(), "notify", "job-1", func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
}

func TestInlineSwallowsErrors(t *testing.T) {
	called := false
	Inline{}.Run(context.Background(), "portfolio", "job-1", func(context.Context) error {
		called = true
		return errors.New("portfolio down")
	})
	assert.True(t, called)
}

func TestHTTPSinkPostsJSON(t *testing.T) {
	var (
		mu     sync.Mutex
		paths  []string
		bodies []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, body)
		mu.Unlock()
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL+"/", config.OutboundConfig{APIToken: "secret"})
	ctx := context.Background()
	require.NoError(t, sink.Notify(ctx, Notification{UserID: "pro-1", Type: NotifyHired, Title: "Hired"}))
	require.NoError(t, sink.NotifyMany(ctx, []string{"a", "b"}, Notification{Type: NotifyRequestTaken}))
	require.NoError(t, sink.NotifyMany(ctx, nil, Notification{Type: NotifyRequestTaken}))
	require.NoError(t, sink.Send(ctx, "pro-1", "You were hired"))
	require.NoError(t, sink.CreateFromJob(ctx, PortfolioEntry{JobID: "job-1", Images: []string{"x.jpg"}}))

	assert.Equal(t, []string{"/notifications", "/notifications/batch", "/sms", "/portfolio/from-job"}, paths)
	assert.Equal(t, "pro-1", bodies[0]["user_id"])
	assert.Equal(t, []any{"a", "b"}, bodies[1]["user_ids"])
	assert.Equal(t, "request_taken", bodies[1]["type"])
}

func TestHTTPSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, config.OutboundConfig{RetryCount: 2})
	require.NoError(t, sink.EmitProjectStageUpdate(context.Background(), ProjectUpdate{JobID: "job-1", Kind: "stage"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPSinkReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, config.OutboundConfig{})
	err := sink.EmitProjectMessage(context.Background(), ProjectUpdate{JobID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestNewSinksFallsBackToLog(t *testing.T) {
	sinks := NewSinks(config.OutboundConfig{NotifyURL: "http://notify.local"}, nil)
	assert.IsType(t, &HTTPSink{}, sinks.Notifier)
	assert.IsType(t, LogSink{}, sinks.SMS)
	assert.IsType(t, LogSink{}, sinks.Realtime)
	assert.IsType(t, LogSink{}, sinks.Portfolio)
}
