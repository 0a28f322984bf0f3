package repositorycache

import (
	"context"
)

type (
	invalidationTagsContextKey struct{}
	readTagContextKey          struct{}
	queryKeyContextKey         struct{}
)

// WithInvalidationTags attaches extra tags that the next successful write
// must invalidate on top of the repository tag. Use it when a write to one
// entity class changes results cached under another, e.g. a new message
// bumping thread counters.
func WithInvalidationTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	existing := invalidationTagsFromContext(ctx)
	combined := dedupeStrings(append(existing, tags...))
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, invalidationTagsContextKey{}, combined)
}

func invalidationTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(invalidationTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

// WithReadTag registers the next cached read under tag instead of the
// repository tag. A query whose result depends on another entity class
// should be tagged with the class that changes it.
func WithReadTag(ctx context.Context, tag string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tag == "" {
		return ctx
	}
	return context.WithValue(ctx, readTagContextKey{}, tag)
}

func readTagFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tag, ok := ctx.Value(readTagContextKey{}).(string)
	return tag, ok && tag != ""
}

// WithQueryKey supplies the parameters that identify the next read. They
// are rendered with the repository KeySerializer and take precedence over
// keys derived from criteria.
func WithQueryKey(ctx context.Context, args ...any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(args) == 0 {
		return ctx
	}
	return context.WithValue(ctx, queryKeyContextKey{}, append([]any(nil), args...))
}

func queryKeyFromContext(ctx context.Context) ([]any, bool) {
	if ctx == nil {
		return nil, false
	}
	args, ok := ctx.Value(queryKeyContextKey{}).([]any)
	return args, ok
}

// dedupeStrings drops empty and repeated values, keeping first-seen order.
func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
