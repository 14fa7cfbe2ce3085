package outbound

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/oggyb/matchchat/internal/logger"
	"github.com/oggyb/matchchat/internal/metrics"
)

func TestDispatcher_RunsAndCountsFailures(t *testing.T) {
	d := NewDispatcher(logger.Discard(), time.Second)
	before := testutil.ToFloat64(metrics.OutboundFailures.WithLabelValues("test-sender"))

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		fail := i%2 == 0
		d.Go("test-sender", func(ctx context.Context) error {
			ran.Add(1)
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected bounded context")
			}
			if fail {
				return errors.New("boom")
			}
			return nil
		})
	}
	d.Wait()

	assert.Equal(t, int32(5), ran.Load())
	after := testutil.ToFloat64(metrics.OutboundFailures.WithLabelValues("test-sender"))
	assert.Equal(t, float64(3), after-before)
}
