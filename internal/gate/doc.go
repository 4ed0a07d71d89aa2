// Package gate decides, at dispatch time, whether this worker executes a
// task or leaves it for another member of the fleet.
//
// The gate reads the routing key from the task's baggage, takes the active
// key set from the rules cache without blocking, and applies the decision
// table in package policy. A skipped task is not a failure: Handle returns
// an Outcome whose Skipped method reports true and a nil error, and the
// transport hands the task back to the queue.
//
// Example:
//
//	g := gate.New(policy.Sandbox("canary1"), cache, registry, logger, collector)
//	outcome, err := g.Handle(ctx, t)
//	switch {
//	case outcome.Skipped():
//		// requeue for another worker
//	case err != nil:
//		// retry
//	default:
//		// publish outcome.Result
//	}
package gate
