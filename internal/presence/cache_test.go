package presence

import "testing"

func TestCacheStoresConclusiveOnly(t *testing.T) {
	c := NewCache(10)
	c.Put("a", Result{Outcome: OutcomeFound, Handle: "@a"})
	c.Put("b", Result{Outcome: OutcomeNotFound})
	c.Put("c", Result{Outcome: OutcomeRateLimited})
	c.Put("d", Result{Outcome: OutcomeUnreachable})

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("c"); ok {
		t.Error("rate_limited result must not be cached")
	}
	if _, ok := c.Get("d"); ok {
		t.Error("unreachable result must not be cached")
	}
	if r, ok := c.Get("a"); !ok || r.Handle != "@a" {
		t.Errorf("Get(a) = %+v, %v", r, ok)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(2)
	c.Put("a", Result{Outcome: OutcomeFound})
	c.Put("b", Result{Outcome: OutcomeFound})
	c.Put("c", Result{Outcome: OutcomeFound})

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("entry b should survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("entry c should survive")
	}
}

func TestCacheUpdateDoesNotGrow(t *testing.T) {
	c := NewCache(2)
	c.Put("a", Result{Outcome: OutcomeNotFound})
	c.Put("a", Result{Outcome: OutcomeFound, Handle: "@a"})
	c.Put("b", Result{Outcome: OutcomeFound})

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if r, _ := c.Get("a"); r.Outcome != OutcomeFound {
		t.Errorf("update lost: %+v", r)
	}
}
