package policy

// Role identifies the worker kind, fixed for the process lifetime.
type Role struct {
	sandbox string
}

// Baseline returns the baseline role.
func Baseline() Role {
	return Role{}
}

// Sandbox returns the role of the sandbox with the given name.
// An empty name yields the baseline role.
func Sandbox(name string) Role {
	return Role{sandbox: name}
}

// RoleFor maps a configured sandbox name to a role ("" is the baseline).
func RoleFor(sandboxName string) Role {
	return Sandbox(sandboxName)
}

// IsSandbox reports whether the role is a sandbox.
func (r Role) IsSandbox() bool {
	return r.sandbox != ""
}

// SandboxName returns the sandbox name, empty for the baseline.
func (r Role) SandboxName() string {
	return r.sandbox
}

// String returns "baseline" or "sandbox:<name>".
func (r Role) String() string {
	if !r.IsSandbox() {
		return "baseline"
	}
	return "sandbox:" + r.sandbox
}

// Action is the outcome of a routing decision.
type Action int

const (
	// Proceed means this worker executes the work.
	Proceed Action = iota

	// Skip means the work belongs to another worker in the fleet.
	Skip
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch a {
	case Proceed:
		return "proceed"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Reason explains which row of the decision table applied.
type Reason string

const (
	// ReasonNoRoutingKey means the work carried no routing key.
	ReasonNoRoutingKey Reason = "no_routing_key"

	// ReasonClaimed means the routing key is in the active key set.
	ReasonClaimed Reason = "claimed_by_sandbox"

	// ReasonNotClaimed means the routing key is not in the active key set.
	ReasonNotClaimed Reason = "not_claimed"
)

// Decision is the tagged result of Decide.
type Decision struct {
	Action Action
	Reason Reason
}

// Proceeds reports whether the decision is Proceed.
func (d Decision) Proceeds() bool {
	return d.Action == Proceed
}

// KeySet is the membership view of the active routing keys.
type KeySet interface {
	Contains(key string) bool
}

// Decide applies the routing table:
//
//	role      key      claimed  result
//	sandbox   absent   -        skip
//	sandbox   present  yes      proceed
//	sandbox   present  no       skip
//	baseline  absent   -        proceed
//	baseline  present  yes      skip
//	baseline  present  no       proceed
func Decide(role Role, key string, hasKey bool, active KeySet) Decision {
	if !hasKey {
		if role.IsSandbox() {
			return Decision{Action: Skip, Reason: ReasonNoRoutingKey}
		}
		return Decision{Action: Proceed, Reason: ReasonNoRoutingKey}
	}

	claimed := active != nil && active.Contains(key)

	switch {
	case role.IsSandbox() && claimed:
		return Decision{Action: Proceed, Reason: ReasonClaimed}
	case role.IsSandbox():
		return Decision{Action: Skip, Reason: ReasonNotClaimed}
	case claimed:
		return Decision{Action: Skip, Reason: ReasonClaimed}
	default:
		return Decision{Action: Proceed, Reason: ReasonNotClaimed}
	}
}
