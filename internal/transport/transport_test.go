package transport

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSendForegroundSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{UpdateURL: srv.URL}, testLogger())
	err := c.Send(context.Background(), []byte(`{"add":{}}`), false)
	require.NoError(t, err)
}

func TestSendForegroundFailureSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(Config{UpdateURL: srv.URL}, testLogger())
	err := c.Send(context.Background(), []byte(`{"add":{}}`), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestBackgroundSendIsAtMostOneInFlight(t *testing.T) {
	var inFlight int32
	var maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxObserved)
			if cur <= old || atomic.CompareAndSwapInt32(&maxObserved, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{UpdateURL: srv.URL, Background: true}, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, []byte(`{"add":{}}`), false))
	require.NoError(t, c.Send(ctx, []byte(`{"add":{}}`), false))
	require.NoError(t, c.Await(ctx))

	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(1), "at most one background request should be in flight at a time")
}

func TestBackgroundSendPropagatesErrorOnAwait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{UpdateURL: srv.URL, Background: true}, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, []byte(`{"add":{}}`), false), "background Send itself never returns the worker's error")
	err := c.Await(ctx)
	assert.Error(t, err, "the failed worker's error must surface on the next Await")

	require.NoError(t, c.Await(ctx), "Await should clear lastErr once reported")
}

func TestCompressSendsGzippedBody(t *testing.T) {
	var gotEncoding string
	var decoded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		gz, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		decoded, err = io.ReadAll(gz)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{UpdateURL: srv.URL, Compress: true}, testLogger())
	require.NoError(t, c.Send(context.Background(), []byte(`{"add":{}}`), false))

	assert.Equal(t, "gzip", gotEncoding)
	assert.Equal(t, `{"add":{}}`, string(decoded))
}

func TestCommitOptimizeDeleteByQueryEnvelopes(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{UpdateURL: srv.URL, LongTimeout: time.Second}, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Commit(ctx))
	require.NoError(t, c.Optimize(ctx))
	require.NoError(t, c.DeleteByQuery(ctx, "id:s1.*"))

	require.Len(t, bodies, 3)
	assert.Equal(t, `{"commit":{}}`, bodies[0])
	assert.Equal(t, `{"optimize":{}}`, bodies[1])
	assert.JSONEq(t, `{"delete":{"query":"id:s1.*"}}`, bodies[2])
}
