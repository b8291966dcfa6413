// Package async runs fire-and-forget work in detached goroutines with panic
// recovery and a per-task timeout.
//
// SafeGo detaches the task from the caller's request lifetime while still
// honoring cancellation of the parent context:
//
//	async.SafeGo(ctx, 10*time.Second, "payment_received notification", logger,
//		func(ctx context.Context) error {
//			return sink.Notify(ctx, ownerID, category, payload)
//		})
//
// Panics and task errors are logged through the structured logger with the
// task name attached; nothing is returned to the caller. The main consumer is
// pkg/payments, which dispatches outbound notifications only after a payment
// outcome is durable and must not let a slow sink stall the request path.
package async
