package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreakerClosedByDefault(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if !b.Allow("onchain") {
		t.Fatal("fresh source should be allowed")
	}
	if got := b.State("onchain"); got != StateClosed {
		t.Fatalf("State = %v, want closed", got)
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("onchain")
	b.RecordFailure("onchain")
	if !b.Allow("onchain") {
		t.Fatal("two strikes should not trip a threshold of three")
	}

	b.RecordFailure("onchain")
	if b.Allow("onchain") {
		t.Fatal("third strike should open the circuit")
	}
	if got := b.State("onchain"); got != StateOpen {
		t.Fatalf("State = %v, want open", got)
	}
}

func TestBreakerProbeAfterCooldown(t *testing.T) {
	b := New(2, 40*time.Millisecond)
	b.RecordFailure("offchain")
	b.RecordFailure("offchain")

	if b.Allow("offchain") {
		t.Fatal("circuit should reject during cooldown")
	}

	time.Sleep(50 * time.Millisecond)

	if !b.Allow("offchain") {
		t.Fatal("first caller after cooldown should get the probe slot")
	}
	if got := b.State("offchain"); got != StateHalfOpen {
		t.Fatalf("State = %v, want half_open", got)
	}
	if b.Allow("offchain") {
		t.Fatal("second caller should be rejected while the probe is out")
	}
}

func TestBreakerProbeVerdict(t *testing.T) {
	tripAndProbe := func() *Breaker {
		b := New(2, 40*time.Millisecond)
		b.RecordFailure("offchain")
		b.RecordFailure("offchain")
		time.Sleep(50 * time.Millisecond)
		b.Allow("offchain")
		return b
	}

	t.Run("success closes", func(t *testing.T) {
		b := tripAndProbe()
		b.RecordSuccess("offchain")
		if got := b.State("offchain"); got != StateClosed {
			t.Fatalf("State = %v, want closed", got)
		}
		if !b.Allow("offchain") {
			t.Fatal("recovered source should be allowed")
		}
	})

	t.Run("failure reopens", func(t *testing.T) {
		b := tripAndProbe()
		b.RecordFailure("offchain")
		if got := b.State("offchain"); got != StateOpen {
			t.Fatalf("State = %v, want open", got)
		}
	})
}

func TestBreakerSuccessClearsStrikes(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("onchain")
	b.RecordFailure("onchain")
	b.RecordSuccess("onchain")
	b.RecordFailure("onchain")

	if !b.Allow("onchain") {
		t.Fatal("strike count should reset on success")
	}
}

func TestBreakerSourcesAreIndependent(t *testing.T) {
	b := New(2, 100*time.Millisecond)
	b.RecordFailure("onchain")
	b.RecordFailure("onchain")

	if b.Allow("onchain") {
		t.Fatal("onchain should be open")
	}
	if !b.Allow("offchain") {
		t.Fatal("offchain should be untouched by onchain strikes")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(42):     "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
