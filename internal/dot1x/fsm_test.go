package dot1x_test

import (
	"testing"

	"github.com/dantte-lp/gobfd/internal/dot1x"
)

func TestStateTerminal(t *testing.T) {
	t.Parallel()

	terminal := []dot1x.State{
		dot1x.StateSuccess, dot1x.StateFailure, dot1x.StateTimeoutFailure,
		dot1x.StateSuccess2, dot1x.StateFailure2, dot1x.StateTimeoutFailure2,
		dot1x.StateDisabled,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", s)
		}
	}

	nonTerminal := []dot1x.State{
		dot1x.StateNoState, dot1x.StateInitialize, dot1x.StateIdle,
		dot1x.StateReceived, dot1x.StateAaaIdle, dot1x.StateIdle2,
	}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", s)
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	if got := dot1x.StateIdle.String(); got != "IDLE" {
		t.Errorf("StateIdle.String() = %q, want %q", got, "IDLE")
	}
	if got := dot1x.State(255).String(); got == "" {
		t.Error("out-of-range State.String() returned empty string")
	}
}

func TestEventString(t *testing.T) {
	t.Parallel()

	if got := dot1x.EventLogoff.String(); got != "Logoff" {
		t.Errorf("EventLogoff.String() = %q, want %q", got, "Logoff")
	}
	if got := dot1x.Event(255).String(); got == "" {
		t.Error("out-of-range Event.String() returned empty string")
	}
}

// TestDefaultPolicy verifies the pass-through-only decision oracle: always
// delegate to RADIUS, with EapolStart continuing local bookkeeping instead.
func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	src := mustMAC(t, "00:00:00:00:00:01")

	if got := dot1x.DefaultPolicy(dot1x.NewEapolStart(src)); got != dot1x.PolicyContinue {
		t.Errorf("DefaultPolicy(EapolStart) = %v, want PolicyContinue", got)
	}

	identity := dot1x.NewIdentityRequest(1)
	if got := dot1x.DefaultPolicy(identity); got != dot1x.PolicyPassthrough {
		t.Errorf("DefaultPolicy(Identity) = %v, want PolicyPassthrough", got)
	}
}
