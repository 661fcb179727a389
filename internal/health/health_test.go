package health

import (
	"context"
	"sync"
	"testing"
)

func staticCheck(name string, healthy bool, detail string) Checker {
	return func(context.Context) Status {
		return Status{Name: name, Healthy: healthy, Detail: detail}
	}
}

func TestCheckAll(t *testing.T) {
	t.Run("no checkers", func(t *testing.T) {
		healthy, statuses := NewRegistry().CheckAll(context.Background())
		if !healthy {
			t.Fatal("a registry with nothing to check is healthy")
		}
		if len(statuses) != 0 {
			t.Fatalf("statuses = %d, want 0", len(statuses))
		}
	})

	t.Run("all passing", func(t *testing.T) {
		r := NewRegistry()
		r.Register("database", staticCheck("database", true, ""))
		r.Register("chain_rpc", staticCheck("chain_rpc", true, "chain 1"))

		healthy, statuses := r.CheckAll(context.Background())
		if !healthy {
			t.Fatal("expected healthy")
		}
		if len(statuses) != 2 {
			t.Fatalf("statuses = %d, want 2", len(statuses))
		}
	})

	t.Run("one failing taints the whole", func(t *testing.T) {
		r := NewRegistry()
		r.Register("database", staticCheck("database", true, ""))
		r.Register("chain_rpc", staticCheck("chain_rpc", false, "dial tcp: connection refused"))

		healthy, statuses := r.CheckAll(context.Background())
		if healthy {
			t.Fatal("expected unhealthy")
		}
		var failing *Status
		for i := range statuses {
			if !statuses[i].Healthy {
				failing = &statuses[i]
			}
		}
		if failing == nil || failing.Detail != "dial tcp: connection refused" {
			t.Fatalf("failing status = %+v, want chain_rpc detail preserved", failing)
		}
	})
}

func TestRegistryConcurrency(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("database", staticCheck("database", true, ""))
		}()
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()
}
