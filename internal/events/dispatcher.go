package events

import (
	"context"
	"io"
	"sync"
	"time"

	awsclient "image-collector/internal/common/aws"
	"image-collector/internal/common/config"
	"image-collector/internal/common/logger"
	"image-collector/internal/common/metrics"
	"image-collector/internal/scheduler"
)

const defaultPublishTimeout = 5 * time.Second

// Dispatcher decouples sinks from the scheduler. Its listener never blocks:
// events arriving while the buffer is full are dropped and counted.
type Dispatcher struct {
	sinks   []Sink
	ch      chan scheduler.Event
	log     logger.Logger
	timeout time.Duration

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

func NewDispatcher(log logger.Logger, bufferSize int, sinks ...Sink) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 256
	}
	return &Dispatcher{
		sinks:   sinks,
		ch:      make(chan scheduler.Event, bufferSize),
		log:     log,
		timeout: defaultPublishTimeout,
		done:    make(chan struct{}),
	}
}

// Listener is subscribed to the scheduler.
func (d *Dispatcher) Listener() scheduler.Listener {
	return func(e scheduler.Event) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return
		}
		select {
		case d.ch <- e:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

// Start runs the publish loop until Close. Repeated calls are no-ops.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() { go d.loop() })
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for e := range d.ch {
		for _, s := range d.sinks {
			d.publish(s, e)
		}
	}
}

func (d *Dispatcher) publish(s Sink, e scheduler.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := s.Publish(ctx, e); err != nil {
		metrics.EventsPublished.WithLabelValues(s.Name(), "error").Inc()
		d.log.Warn("Event publish failed", map[string]interface{}{
			"sink": s.Name(), "event": string(e.Type), "jobId": e.JobID, "error": err.Error(),
		})
		return
	}
	metrics.EventsPublished.WithLabelValues(s.Name(), "ok").Inc()
}

// Close stops accepting events, drains the buffer and closes sinks that hold
// connections. It returns early when ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		d.Start()
	})

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				d.log.Warn("Event sink close failed", map[string]interface{}{"sink": s.Name(), "error": err.Error()})
			}
		}
	}
	return nil
}

// SinksFromConfig builds the log sink plus any enabled remote sinks.
func SinksFromConfig(ctx context.Context, cfg config.EventsConfig, log logger.Logger) ([]Sink, error) {
	sinks := []Sink{NewLogSink(log)}
	if cfg.SNS.Enabled {
		client, err := awsclient.NewSNSClient(ctx, cfg.SNS.Region)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, NewSNSSink(client, cfg.SNS.TopicARN))
	}
	if cfg.Kafka.Enabled {
		k, err := NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, k)
	}
	return sinks, nil
}
