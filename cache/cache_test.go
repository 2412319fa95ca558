package cache

import (
	"testing"
	"time"
)

func TestCache_PutGet(t *testing.T) {
	c := New[string]()
	c.Put("a", "value-a", time.Minute)

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("Get() returned ok = false, want true")
	}
	if got != "value-a" {
		t.Errorf("Get() = %q, want %q", got, "value-a")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() for missing key returned ok = true")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[int]()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("a", 1, time.Minute)

	now = now.Add(time.Minute + time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("Get() returned expired entry")
	}
}

func TestCache_Sweep(t *testing.T) {
	c := New[int]()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("old", 1, time.Minute)
	c.Put("fresh", 2, time.Hour)

	now = now.Add(2 * time.Minute)
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d entries, want 1", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after sweep, want 1", c.Len())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("Sweep() removed a fresh entry")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New[int]()
	c.Put("a", 1, time.Minute)
	c.Put("b", 2, time.Minute)

	if n := c.Clear(); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after clear, want 0", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := New[int]()
	c.Put("a", 1, time.Minute)

	if !c.Delete("a") {
		t.Error("Delete() = false for present key")
	}
	if c.Delete("a") {
		t.Error("Delete() = true for absent key")
	}
}

func TestCache_Entries(t *testing.T) {
	c := New[string]()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.PutLabeled("b", "Feed B", "xml-b", time.Hour)
	c.PutLabeled("a", "Feed A", "xml-a", time.Hour)
	c.Put("expired", "gone", -time.Minute)

	infos := c.Entries()
	if len(infos) != 2 {
		t.Fatalf("Entries() returned %d entries, want 2", len(infos))
	}
	if infos[0].Key != "a" || infos[1].Key != "b" {
		t.Errorf("Entries() not sorted by key: %v", infos)
	}
	if infos[0].Label != "Feed A" {
		t.Errorf("Entries()[0].Label = %q, want %q", infos[0].Label, "Feed A")
	}
}
