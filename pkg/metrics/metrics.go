// Package metrics exports socket activity as Prometheus metrics.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/livews/livews.go"
)

const namespace = "livews"

// Collector implements livews.Observer by updating Prometheus metrics.
type Collector struct {
	connectAttempts prometheus.Counter
	connectDelay    prometheus.Histogram
	retry           prometheus.Gauge
	reconnects      prometheus.Counter
	opens           prometheus.Counter
	connected       prometheus.Gauge
	closes          *prometheus.CounterVec
	errors          prometheus.Counter
	messagesSent    prometheus.Counter
	sentSize        prometheus.Counter
	messagesQueued  prometheus.Counter
	messagesDropped prometheus.Counter
	queueLength     prometheus.Gauge
	queueFlushes    prometheus.Counter
	pongTimeouts    prometheus.Counter
}

var _ livews.Observer = (*Collector)(nil)

// New creates a collector for the socket called name and registers its
// metrics with reg. Every metric carries a "socket" label set to name.
func New(reg prometheus.Registerer, name string) (*Collector, error) {
	labels := prometheus.Labels{"socket": name}
	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(metric, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		})
	}

	c := &Collector{
		connectAttempts: counter("connect_attempts_total", "Total number of connection attempts"),
		connectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "connect_delay_seconds",
			Help:        "Backoff delay before each connection attempt in seconds",
			Buckets:     []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30},
			ConstLabels: labels,
		}),
		retry:      gauge("retry_count", "Connection attempts since the last stable connection"),
		reconnects: counter("reconnects_total", "Total number of transports created after the first"),
		opens:      counter("opens_total", "Total number of connections opened"),
		connected:  gauge("connected", "Whether the socket is currently open"),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "closes_total",
			Help:        "Total number of connections closed by close code",
			ConstLabels: labels,
		}, []string{"code"}),
		errors:          counter("errors_total", "Total number of transport and connection errors"),
		messagesSent:    counter("messages_sent_total", "Total number of messages sent directly"),
		sentSize:        counter("messages_sent_size_total", "Total size of messages sent directly, in characters for text and bytes for binary"),
		messagesQueued:  counter("messages_queued_total", "Total number of messages queued while disconnected"),
		messagesDropped: counter("messages_dropped_total", "Total number of messages dropped because the queue was full"),
		queueLength:     gauge("queue_length", "Number of messages waiting for the next connection"),
		queueFlushes:    counter("queue_flushes_total", "Total number of queue flushes on open"),
		pongTimeouts:    counter("pong_timeouts_total", "Total number of heartbeat pong timeouts"),
	}

	var errs []error
	for _, col := range []prometheus.Collector{
		c.connectAttempts, c.connectDelay, c.retry, c.reconnects, c.opens, c.connected,
		c.closes, c.errors, c.messagesSent, c.sentSize, c.messagesQueued,
		c.messagesDropped, c.queueLength, c.queueFlushes, c.pongTimeouts,
	} {
		if err := reg.Register(col); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) ConnectAttempt(retry int, delay time.Duration) {
	c.connectAttempts.Inc()
	c.connectDelay.Observe(delay.Seconds())
	c.retry.Set(float64(retry))
}

func (c *Collector) Reconnected() {
	c.reconnects.Inc()
}

func (c *Collector) Opened() {
	c.opens.Inc()
	c.connected.Set(1)
}

func (c *Collector) Closed(code int) {
	c.closes.WithLabelValues(strconv.Itoa(code)).Inc()
	c.connected.Set(0)
}

func (c *Collector) Failed(error) {
	c.errors.Inc()
}

func (c *Collector) MessageSent(size int) {
	c.messagesSent.Inc()
	c.sentSize.Add(float64(size))
}

func (c *Collector) MessageQueued(_, queued int) {
	c.messagesQueued.Inc()
	c.queueLength.Set(float64(queued))
}

func (c *Collector) MessageDropped(int) {
	c.messagesDropped.Inc()
}

func (c *Collector) QueueFlushed(int) {
	c.queueFlushes.Inc()
	c.queueLength.Set(0)
}

func (c *Collector) PongTimeout() {
	c.pongTimeouts.Inc()
}
