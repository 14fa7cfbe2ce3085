package outbound

import (
	"context"
	"log/slog"
	"sync"
	"time"

	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/metrics"
)

// Dispatcher runs outbound deliveries (push, mail) off the request path.
// Failures are logged and counted; callers never see them.
type Dispatcher struct {
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{log: log, timeout: timeout}
}

// Go schedules fn on its own goroutine with a bounded context.
func (d *Dispatcher) Go(sender string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.OutboundFailures.WithLabelValues(sender).Inc()
			d.log.Warn("outbound delivery failed", "sender", sender,
				"err", svcErr.Transient(err, "%s delivery", sender))
		}
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
