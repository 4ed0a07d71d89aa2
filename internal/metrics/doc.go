// Package metrics exposes Prometheus metrics for the sandbox worker.
//
// A single Collector owns its registry and is shared by the rules cache,
// the execution gate and the transports. Every method is safe on a nil
// *Collector, so components built without metrics need no special casing.
//
// Example:
//
//	collector := metrics.New(nil)
//	collector.ObserveDecision("baseline", "skip", "claimed_by_sandbox")
//	http.Handle("/metrics", collector.Handler())
package metrics
