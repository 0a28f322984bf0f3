package cache

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Tag vocabulary. A writer of entity class X invalidates the tag for X
// after every successful create, update or delete.
const (
	TagMessages      = "messages"
	TagThreads       = "threads"
	TagPlans         = "plans"
	TagWebsites      = "websites"
	TagSubscriptions = "subscriptions"
	TagMembers       = "members"
)

// TTL policy.
const (
	// TTLDefault covers stable list and detail queries.
	TTLDefault = 24 * time.Hour
	// TTLAggregate covers rolling time-window aggregates, whose notion of
	// "recent" shifts even without writes.
	TTLAggregate = 10 * time.Minute
)

// KeySeparator joins the entity and every part of a key.
const KeySeparator = "_"

// MaxKeyLength is the longest key QueryKey returns verbatim. Longer keys
// collapse their parts into a digest.
const MaxKeyLength = 250

// partEscaper keeps parts free of the separator so distinct part lists can
// never render to the same key.
var partEscaper = strings.NewReplacer("%", "%25", KeySeparator, "%5F")

// EntityKey returns the single-entity key "<entity>_<id>", e.g. plan_42.
// These keys are never tagged; writers evict them with Delete.
func EntityKey(entity string, id any) string {
	return entity + KeySeparator + partEscaper.Replace(fmt.Sprint(id))
}

// QueryKey returns "<entity>_<part1>_<part2>...". Parts must already be a
// deterministic rendering of every parameter that shapes the result set.
func QueryKey(entity string, parts ...string) string {
	var b strings.Builder
	b.WriteString(entity)
	for _, p := range parts {
		b.WriteString(KeySeparator)
		b.WriteString(partEscaper.Replace(p))
	}

	key := b.String()
	if len(key) <= MaxKeyLength {
		return key
	}
	return entity + KeySeparator + "h" + Digest(key)
}

// WindowKey returns the key for an aggregate over a rolling window scoped to
// one owner, e.g. messages_site-9_7d. Whole-day windows render as Nd.
func WindowKey(entity string, scopeID any, window time.Duration) string {
	return QueryKey(entity, fmt.Sprint(scopeID), formatWindow(window))
}

// Page renders a page number as a key part.
func Page(n int) string {
	return "page" + strconv.Itoa(n)
}

// termEscaper keeps the term joiner out of individual terms.
var termEscaper = strings.NewReplacer("%", "%25", "+", "%2B")

// SearchTerms normalizes free-text search input so logically identical
// queries share one key. Terms are lowercased, split on whitespace,
// deduplicated and sorted, then joined with "+". A "+" or "%" inside a term
// is percent-escaped, so "c+go" and "c go" stay distinct.
func SearchTerms(q string) string {
	terms := strings.Fields(strings.ToLower(q))
	if len(terms) == 0 {
		return ""
	}
	slices.Sort(terms)
	terms = slices.Compact(terms)
	for i, term := range terms {
		terms[i] = termEscaper.Replace(term)
	}
	return strings.Join(terms, "+")
}

// Digest returns a fixed-width xxhash of s.
func Digest(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

func formatWindow(d time.Duration) string {
	const day = 24 * time.Hour
	if d > 0 && d%day == 0 {
		return strconv.FormatInt(int64(d/day), 10) + "d"
	}
	return d.String()
}
