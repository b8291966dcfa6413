package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gstpilot/billing/pkg/observability"
)

// SafeGo runs fn in a goroutine with a timeout, panic recovery, and error
// logging. The task detaches from the caller: pass context.Background() when
// the work must outlive the originating request.
//
//	async.SafeGo(context.Background(), 10*time.Second, "payment_received notification", logger,
//	    func(ctx context.Context) error {
//	        return sink.Notify(ctx, ownerID, category, payload)
//	    })
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("detached task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("detached task failed")
		}
	}()
}
