// Package resilience holds the fault tolerance helpers shared by the worker.
//
//   - circuitbreaker wraps provider fetches, outbound email and SMS, and
//     operator webhooks so a dead upstream fails fast instead of holding up
//     a whole poll cycle or delivery batch.
//   - retry provides exponential backoff with jitter. Provider polls are never
//     retried (the next cycle is the retry); backoff is used for startup
//     dependencies such as the database ping.
//
// Usage:
//
//	cb := circuitbreaker.New(circuitbreaker.TransportConfig("email"))
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return nil, send()
//	})
//
//	err := retry.WithBackoff(ctx, retry.DBConfig(), func() error {
//	    return db.PingContext(ctx)
//	})
package resilience
