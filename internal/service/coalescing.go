package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/forecast-service/internal/models"
)

// requestCoalescer shares one in-flight miss resolution between concurrent callers for
// the same key. The shared work runs detached from the leader's cancellation, bounded by
// timeout, so a caller that gives up does not fail everyone waiting on it.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn once per key among concurrent callers. absorbed reports that this
// caller got the result of another caller's fn.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (*models.ForecastRecord, error)) (rec *models.ForecastRecord, absorbed bool, err error) {
	ran := false
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		ran = true
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		return fn(runCtx)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, !ran, res.Err
		}
		rec, _ = res.Val.(*models.ForecastRecord)
		return rec, !ran, nil
	}
}
