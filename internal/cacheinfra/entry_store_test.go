package cacheinfra

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-result-cache/internal/testsupport"
)

func newTestStore(t *testing.T) (*EntryStore, *testsupport.ManualClock) {
	t.Helper()

	clock := testsupport.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := Config{
		Capacity:           1000,
		NumShards:          8,
		MaxTTL:             24 * time.Hour,
		EvictionPercentage: 10,
	}

	store, err := NewEntryStore(cfg, clock.Now)
	if err != nil {
		t.Fatalf("failed to create entry store: %v", err)
	}
	return store, clock
}

func TestNewEntryStore_InvalidConfig(t *testing.T) {
	store, err := NewEntryStore(Config{}, nil)
	if err == nil {
		t.Fatal("expected error for zero config")
	}
	if store != nil {
		t.Error("expected nil store on error")
	}
}

func TestEntryStore_SetGetDelete(t *testing.T) {
	store, _ := newTestStore(t)

	if _, ok := store.Get("plan_7"); ok {
		t.Fatal("expected miss on empty store")
	}

	store.Set("plan_7", "basic", time.Hour)
	got, ok := store.Get("plan_7")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got != "basic" {
		t.Errorf("expected basic, got %v", got)
	}

	store.Set("plan_7", "premium", time.Hour)
	if got, _ := store.Get("plan_7"); got != "premium" {
		t.Errorf("expected overwrite to premium, got %v", got)
	}

	store.Delete("plan_7")
	if _, ok := store.Get("plan_7"); ok {
		t.Error("expected miss after Delete")
	}

	// deleting again is a no-op
	store.Delete("plan_7")
	store.Delete("never_set")
}

func TestEntryStore_LazyExpiry(t *testing.T) {
	store, clock := newTestStore(t)

	store.Set("stats_site1_7d", 42, 10*time.Minute)

	clock.Advance(10*time.Minute - time.Nanosecond)
	if _, ok := store.Get("stats_site1_7d"); !ok {
		t.Fatal("expected hit just before the deadline")
	}

	clock.Advance(time.Nanosecond)
	if _, ok := store.Get("stats_site1_7d"); ok {
		t.Fatal("expected miss when now == expiresAt")
	}
	if store.Contains("stats_site1_7d") {
		t.Error("expected expired entry to be reclaimed")
	}
}

func TestEntryStore_SetResetsDeadline(t *testing.T) {
	store, clock := newTestStore(t)

	store.Set("threads_site1_page1", "v1", time.Minute)
	clock.Advance(50 * time.Second)
	store.Set("threads_site1_page1", "v2", time.Minute)
	clock.Advance(50 * time.Second)

	got, ok := store.Get("threads_site1_page1")
	if !ok || got != "v2" {
		t.Errorf("expected v2 to be live after overwrite, got %v (found=%v)", got, ok)
	}
}

func TestEntryStore_ClampTTL(t *testing.T) {
	store, _ := newTestStore(t)

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{in: 0, want: 24 * time.Hour},
		{in: -time.Second, want: 24 * time.Hour},
		{in: 10 * time.Minute, want: 10 * time.Minute},
		{in: 48 * time.Hour, want: 24 * time.Hour},
	}

	for _, tt := range tests {
		if got := store.ClampTTL(tt.in); got != tt.want {
			t.Errorf("ClampTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEntryStore_ZeroTTLUsesMax(t *testing.T) {
	store, clock := newTestStore(t)

	store.Set("plan_1", "x", 0)
	clock.Advance(23 * time.Hour)
	if _, ok := store.Get("plan_1"); !ok {
		t.Fatal("expected zero ttl to fall back to MaxTTL")
	}
	clock.Advance(time.Hour)
	if _, ok := store.Get("plan_1"); ok {
		t.Fatal("expected entry to expire after MaxTTL")
	}
}

func TestEntryStore_Sweep(t *testing.T) {
	store, clock := newTestStore(t)

	store.Set("short_1", 1, time.Minute)
	store.Set("short_2", 2, time.Minute)
	store.Set("long_1", 3, time.Hour)

	clock.Advance(2 * time.Minute)

	if removed := store.Sweep(); removed != 2 {
		t.Errorf("expected 2 expired slots reclaimed, got %d", removed)
	}
	if got := store.Len(); got != 1 {
		t.Errorf("expected 1 slot left, got %d", got)
	}
	if _, ok := store.Get("long_1"); !ok {
		t.Error("expected long_1 to survive the sweep")
	}
}

func TestEntryStore_Concurrent(t *testing.T) {
	store, _ := newTestStore(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k_%d_%d", w, i%10)
				store.Set(key, i, time.Hour)
				store.Get(key)
				if i%7 == 0 {
					store.Delete(key)
				}
			}
		}(w)
	}
	wg.Wait()
}
