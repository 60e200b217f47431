// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ttlcache

import (
	"testing"
	"time"

	"github.com/bureau-foundation/adminbot/lib/clock"
)

func TestSetGet(t *testing.T) {
	clk := clock.Fake(time.Unix(1000, 0))
	cache := New[string, int](4, time.Hour, clk)

	cache.Set("a", 1)
	value, ok := cache.Get("a")
	if !ok || value != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", value, ok)
	}

	if _, ok := cache.Get("missing"); ok {
		t.Error("Get(missing) reported a hit")
	}
}

func TestExpiry(t *testing.T) {
	clk := clock.Fake(time.Unix(1000, 0))
	cache := New[string, int](4, time.Hour, clk)

	cache.Set("a", 1)
	clk.Advance(59 * time.Minute)
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("entry expired before TTL elapsed")
	}

	clk.Advance(time.Minute)
	if _, ok := cache.Get("a"); ok {
		t.Fatal("entry survived past TTL")
	}
	if cache.Len() != 0 {
		t.Errorf("Len = %d after expiry, want 0", cache.Len())
	}
}

func TestSetRefreshesTTL(t *testing.T) {
	clk := clock.Fake(time.Unix(1000, 0))
	cache := New[string, int](4, time.Hour, clk)

	cache.Set("a", 1)
	clk.Advance(50 * time.Minute)
	cache.Set("a", 2)
	clk.Advance(50 * time.Minute)

	value, ok := cache.Get("a")
	if !ok || value != 2 {
		t.Fatalf("Get(a) after refresh = %d, %v; want 2, true", value, ok)
	}
}

func TestCapacityEviction(t *testing.T) {
	clk := clock.Fake(time.Unix(1000, 0))
	cache := New[string, int](2, time.Hour, clk)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3) // evicts "a", the oldest insertion

	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry survived eviction at capacity")
	}
	for key, want := range map[string]int{"b": 2, "c": 3} {
		if value, ok := cache.Get(key); !ok || value != want {
			t.Errorf("Get(%s) = %d, %v; want %d, true", key, value, ok, want)
		}
	}
}

func TestRefreshedEntryEvictedLast(t *testing.T) {
	clk := clock.Fake(time.Unix(1000, 0))
	cache := New[string, int](2, time.Hour, clk)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("a", 10) // moves "a" behind "b" in eviction order
	cache.Set("c", 3)  // evicts "b"

	if _, ok := cache.Get("b"); ok {
		t.Error("entry b survived, want it evicted")
	}
	if value, ok := cache.Get("a"); !ok || value != 10 {
		t.Errorf("Get(a) = %d, %v; want 10, true", value, ok)
	}
}
