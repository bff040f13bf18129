package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livews/livews.go/pkg/logger"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, "test")
	require.NoError(t, err)

	c.ConnectAttempt(0, 0)
	c.ConnectAttempt(1, 1500*time.Millisecond)
	c.Reconnected()
	c.Opened()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.connectAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retry))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connected))

	c.MessageSent(5)
	c.MessageSent(3)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.messagesSent))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.sentSize))

	c.Closed(1000)
	c.Closed(1006)
	c.Closed(1006)
	c.Failed(errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.closes.WithLabelValues("1000")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.closes.WithLabelValues("1006")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors))

	c.MessageQueued(4, 1)
	c.MessageQueued(4, 2)
	c.MessageDropped(4)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.queueLength))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesDropped))
	c.QueueFlushed(2)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.queueLength))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueFlushes))

	c.PongTimeout()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pongTimeouts))

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "livews_connect_delay_seconds"))
}

func TestNewDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "a")
	require.NoError(t, err)

	_, err = New(reg, "a")
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)

	_, err = New(reg, "b")
	assert.NoError(t, err)
}

func TestServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, "srv")
	require.NoError(t, err)
	c.Opened()

	s := NewServer("127.0.0.1:0", reg, logger.Nop())
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, s.Stop(ctx))
	})

	res, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "OK", string(body))

	res, err = http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.Contains(t, string(body), `livews_opens_total{socket="srv"} 1`)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, "h")
	require.NoError(t, err)
	c.PongTimeout()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `livews_pong_timeouts_total{socket="h"} 1`)
}
