package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[string](10, time.Minute)
	defer c.Stop()

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache returned a hit")
	}
	c.Set("a", "alpha")
	got, ok := c.Get("a")
	if !ok || got != "alpha" {
		t.Fatalf("Get = %q, %v; want alpha, true", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	c := New[int](10, 20*time.Millisecond)
	defer c.Stop()

	c.Set("k", 1)
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}
}

func TestCapacity(t *testing.T) {
	c := New[int](2, time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("b", 3)
	if c.Len() != 2 {
		t.Fatalf("overwrite evicted an entry: len = %d", c.Len())
	}
	c.Set("c", 4)
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
	if v, ok := c.Get("c"); !ok || v != 4 {
		t.Errorf("newest entry missing")
	}
}

func TestDisabled(t *testing.T) {
	c := New[int](10, 0)
	defer c.Stop()

	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("zero TTL cache should never hit")
	}
}

func TestKey(t *testing.T) {
	if Key("a", "bc") == Key("ab", "c") {
		t.Error("keys of different parts collide")
	}
	if Key("history", "u") != Key("history", "u") {
		t.Error("Key is not deterministic")
	}
}
