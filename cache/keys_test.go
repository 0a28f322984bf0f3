package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-result-cache/internal/testsupport"
)

type keyScenario struct {
	Name        string   `json:"name"`
	Entity      string   `json:"entity"`
	Inputs      []string `json:"inputs"`
	Page        int      `json:"page"`
	ExpectedKey string   `json:"expectedKey"`
}

func TestSearchKeys_StableAcrossReorderings(t *testing.T) {
	var fixtures struct {
		Scenarios []keyScenario `json:"scenarios"`
	}
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("key_stability.json"), &fixtures)

	if len(fixtures.Scenarios) == 0 {
		t.Fatal("expected fixture scenarios")
	}

	for _, sc := range fixtures.Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			for _, in := range sc.Inputs {
				got := QueryKey(sc.Entity, "search:"+SearchTerms(in), Page(sc.Page))
				if got != sc.ExpectedKey {
					t.Errorf("input %q: got %q, want %q", in, got, sc.ExpectedKey)
				}
			}
		})
	}
}

func TestSearchTerms(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "foo", want: "foo"},
		{in: "b a", want: "a+b"},
		{in: "a b", want: "a+b"},
		{in: "B  a\tb", want: "a+b"},
		{in: "c+go", want: "c%2Bgo"},
		{in: "100%", want: "100%25"},
	}

	for _, tt := range tests {
		if got := SearchTerms(tt.in); got != tt.want {
			t.Errorf("SearchTerms(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchTerms_DistinctQueriesStayDistinct(t *testing.T) {
	pairs := [][2]string{
		{"c+go", "c go"},
		{"a+b c", "a b+c"},
		{"a%2Bb", "a+b"},
		{"a%2Bb", "a b"},
	}

	for _, p := range pairs {
		left, right := SearchTerms(p[0]), SearchTerms(p[1])
		if left == right {
			t.Errorf("SearchTerms(%q) and SearchTerms(%q) share %q", p[0], p[1], left)
		}
		lk := QueryKey("plans", "search:"+left, Page(1))
		rk := QueryKey("plans", "search:"+right, Page(1))
		if lk == rk {
			t.Errorf("queries %q and %q share key %q", p[0], p[1], lk)
		}
	}
}

func TestEntityKey(t *testing.T) {
	tests := []struct {
		entity string
		id     any
		want   string
	}{
		{entity: "plan", id: 42, want: "plan_42"},
		{entity: "plan", id: "7", want: "plan_7"},
		{entity: "website", id: "a_b", want: "website_a%5Fb"},
	}

	for _, tt := range tests {
		if got := EntityKey(tt.entity, tt.id); got != tt.want {
			t.Errorf("EntityKey(%q, %v) = %q, want %q", tt.entity, tt.id, got, tt.want)
		}
	}
}

func TestQueryKey_NoCollisions(t *testing.T) {
	pairs := [][2][]string{
		{{"a_b", "c"}, {"a", "b_c"}},
		{{"a%5Fb"}, {"a_b"}},
		{{""}, {}},
		{{"x", ""}, {"x"}},
	}

	for _, p := range pairs {
		left := QueryKey("plans", p[0]...)
		right := QueryKey("plans", p[1]...)
		if left == right {
			t.Errorf("parts %q and %q collide on %q", p[0], p[1], left)
		}
	}
}

func TestQueryKey_LongKeysAreDigested(t *testing.T) {
	long := strings.Repeat("term+", 80)

	key := QueryKey("threads", "search:"+long, Page(1))
	if len(key) > MaxKeyLength {
		t.Fatalf("expected key to be shortened, got %d bytes", len(key))
	}
	if !strings.HasPrefix(key, "threads_h") {
		t.Errorf("expected digest key to keep entity prefix, got %q", key)
	}
	if again := QueryKey("threads", "search:"+long, Page(1)); again != key {
		t.Errorf("expected digest to be deterministic: %q != %q", key, again)
	}
	if other := QueryKey("threads", "search:"+long, Page(2)); other == key {
		t.Error("expected different pages to digest differently")
	}
}

func TestWindowKey(t *testing.T) {
	tests := []struct {
		window time.Duration
		want   string
	}{
		{window: 7 * 24 * time.Hour, want: "messages_site-9_7d"},
		{window: 24 * time.Hour, want: "messages_site-9_1d"},
		{window: 90 * time.Minute, want: "messages_site-9_1h30m0s"},
	}

	for _, tt := range tests {
		if got := WindowKey("messages", "site-9", tt.window); got != tt.want {
			t.Errorf("WindowKey(%v) = %q, want %q", tt.window, got, tt.want)
		}
	}
}

func TestDigest(t *testing.T) {
	d := Digest("plans_search:foo_page1")
	if len(d) != 16 {
		t.Errorf("expected 16 hex chars, got %q", d)
	}
	if d != Digest("plans_search:foo_page1") {
		t.Error("expected digest to be deterministic")
	}
}
