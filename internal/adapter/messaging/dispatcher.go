package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/order-service/internal/core/domain"
	"github.com/rl1809/order-service/internal/port"
)

var (
	ErrQueueFull        = errors.New("event queue full")
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

const (
	defaultWorkerCount    = 4
	defaultQueueSize      = 1024
	defaultPublishTimeout = 5 * time.Second
)

// Dispatcher hands committed orders to a pool of workers that publish them,
// so a slow broker never holds up order creation.
type Dispatcher struct {
	next   port.EventPublisher
	logger *slog.Logger

	workerCount    int
	publishTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Order
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workerCount = n
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan domain.Order, n)
		}
	}
}

func WithPublishTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.publishTimeout = timeout
		}
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher starts the worker pool. Close must be called to drain it.
func NewDispatcher(next port.EventPublisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		next:           next,
		logger:         slog.Default(),
		workerCount:    defaultWorkerCount,
		publishTimeout: defaultPublishTimeout,
		queue:          make(chan domain.Order, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.logger.Info("event dispatcher started", "workers", d.workerCount, "queue_size", cap(d.queue))

	return d
}

// PublishOrderCreated enqueues order without blocking.
func (d *Dispatcher) PublishOrderCreated(_ context.Context, order domain.Order) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- order:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the workers to publish what is queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("event dispatcher stopped")
}

func (d *Dispatcher) workerLoop(id int) {
	for order := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)

		if err := d.next.PublishOrderCreated(ctx, order); err != nil {
			d.logger.Error("failed to publish order event",
				"worker", id,
				"order_id", order.ID,
				"error", err,
			)
		} else {
			d.logger.Debug("published order event", "worker", id, "order_id", order.ID)
		}

		cancel()
	}
}
