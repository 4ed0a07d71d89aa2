package policy

import "testing"

type keys map[string]struct{}

func (k keys) Contains(key string) bool {
	_, ok := k[key]
	return ok
}

func TestDecideTable(t *testing.T) {
	active := keys{"canary1": {}}

	tests := []struct {
		name   string
		role   Role
		key    string
		hasKey bool
		want   Decision
	}{
		{"sandbox without key", Sandbox("canary1"), "", false, Decision{Skip, ReasonNoRoutingKey}},
		{"sandbox with claimed key", Sandbox("canary1"), "canary1", true, Decision{Proceed, ReasonClaimed}},
		{"sandbox with unclaimed key", Sandbox("canary1"), "canary2", true, Decision{Skip, ReasonNotClaimed}},
		{"baseline without key", Baseline(), "", false, Decision{Proceed, ReasonNoRoutingKey}},
		{"baseline with claimed key", Baseline(), "canary1", true, Decision{Skip, ReasonClaimed}},
		{"baseline with unclaimed key", Baseline(), "canary2", true, Decision{Proceed, ReasonNotClaimed}},
		{"empty key value is still a key", Baseline(), "", true, Decision{Proceed, ReasonNotClaimed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.role, tt.key, tt.hasKey, active)
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecideIsPure(t *testing.T) {
	active := keys{"canary1": {}}
	role := Sandbox("canary1")

	first := Decide(role, "canary1", true, active)
	for i := 0; i < 100; i++ {
		_ = Decide(Baseline(), "canary1", true, active)
		_ = Decide(role, "other", true, active)
		if got := Decide(role, "canary1", true, active); got != first {
			t.Fatalf("iteration %d: Decide() = %+v, want %+v", i, got, first)
		}
	}
	if len(active) != 1 {
		t.Errorf("active set was modified: %v", active)
	}
}

func TestDecideBeforeFirstFetch(t *testing.T) {
	for _, key := range []string{"canary1", "canary2", "anything"} {
		if d := Decide(Sandbox("canary1"), key, true, nil); d.Action != Skip {
			t.Errorf("sandbox with key %q and nil set: got %v, want skip", key, d.Action)
		}
		if d := Decide(Baseline(), key, true, nil); d.Action != Proceed {
			t.Errorf("baseline with key %q and nil set: got %v, want proceed", key, d.Action)
		}
	}
	if d := Decide(Baseline(), "", false, nil); d.Action != Proceed {
		t.Errorf("baseline without key: got %v, want proceed", d.Action)
	}
}

func TestRole(t *testing.T) {
	if RoleFor("").IsSandbox() {
		t.Error("empty sandbox name should be the baseline")
	}
	if RoleFor("").String() != "baseline" {
		t.Errorf("String() = %q", RoleFor("").String())
	}
	r := RoleFor("canary1")
	if !r.IsSandbox() || r.SandboxName() != "canary1" || r.String() != "sandbox:canary1" {
		t.Errorf("unexpected sandbox role %+v (%s)", r, r)
	}
	if Baseline() != RoleFor("") {
		t.Error("Baseline() should equal RoleFor(\"\")")
	}
}

func TestActionString(t *testing.T) {
	if Proceed.String() != "proceed" || Skip.String() != "skip" || Action(9).String() != "unknown" {
		t.Error("unexpected action names")
	}
}
