package stream

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/quotelab/marketdata/errs"
	"github.com/quotelab/marketdata/internal/observability"
)

// Redial re-runs a session factory with exponential backoff until ctx is
// cancelled. The core never reconnects on its own; this helper is the
// documented caller-side policy for subscriptions that should survive
// transport failures. Authentication rejections are not retried: a credential
// the vendor refused once will be refused again.
func Redial(ctx context.Context, logger observability.Logger, run func(context.Context) error) error {
	log := observability.OrNop(logger)
	bo := backoff.NewExponentialBackOff()

	for {
		err := run(ctx)
		if err == nil {
			// Clean return means the caller cancelled; nothing to redial.
			return nil
		}
		if errs.IsAuth(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		sleep := bo.NextBackOff()
		log.Warn("stream redial scheduled",
			observability.F("sleep", sleep.String()),
			observability.F("error", err.Error()))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}
	}
}
