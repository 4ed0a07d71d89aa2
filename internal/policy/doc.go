// Package policy decides whether this worker should execute a unit of work.
//
// A worker is either the baseline (the catch-all for untagged or unclaimed
// work) or a sandbox opted into one cohort. Given the worker's role, the
// routing key carried by the work and the set of keys currently claimed
// for this worker, Decide returns Proceed or Skip:
//
//	role := policy.RoleFor(os.Getenv("SANDBOX_NAME"))
//	d := policy.Decide(role, key, ok, cache.CurrentKeys())
//	if d.Action == policy.Skip {
//	    // hand the work back to the queue
//	}
//
// Decide is a pure function. Sandboxes only take work explicitly claimed for
// them; the baseline takes everything except work claimed by a sandbox.
// A nil key set is treated as empty, so before the first successful rules
// fetch sandboxes skip everything and the baseline proceeds with everything.
package policy
