package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goliatone/go-result-cache/cache"
)

type demoPlan struct {
	ID   int
	Name string
}

func newDemoCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through entity, tag and read-through scenarios",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := newCoordinator(v)
			if err != nil {
				return err
			}
			defer c.Close()
			return runDemo(cmd.Context(), cmd.OutOrStdout(), c)
		},
	}
}

func runDemo(ctx context.Context, out io.Writer, c *cache.Coordinator) error {
	probe := func(key string) {
		if _, ok := c.Get(key); ok {
			fmt.Fprintf(out, "  hit   %s\n", key)
		} else {
			fmt.Fprintf(out, "  miss  %s\n", key)
		}
	}

	fmt.Fprintln(out, "single entity")
	planKey := cache.EntityKey("plan", 7)
	c.Set(planKey, demoPlan{ID: 7, Name: "Pro"}, cache.TTLDefault)
	probe(planKey)
	c.Delete(planKey)
	probe(planKey)

	fmt.Fprintln(out, "tagged queries")
	search := "search:" + cache.SearchTerms("foo")
	page1 := cache.QueryKey(cache.TagPlans, search, cache.Page(1))
	page2 := cache.QueryKey(cache.TagPlans, search, cache.Page(2))
	sites := cache.QueryKey(cache.TagWebsites, "list", cache.Page(1))
	c.SetAndTag(page1, []demoPlan{{ID: 1}}, cache.TTLDefault, cache.TagPlans)
	c.SetAndTag(page2, []demoPlan{{ID: 2}}, cache.TTLDefault, cache.TagPlans)
	c.SetAndTag(sites, []string{"example.com"}, cache.TTLDefault, cache.TagWebsites)
	keys := c.InvalidateTag(cache.TagPlans)
	fmt.Fprintf(out, "  invalidated %s: %d keys\n", cache.TagPlans, len(keys))
	probe(page1)
	probe(page2)
	probe(sites)

	fmt.Fprintln(out, "read-through")
	website := uuid.New()
	windowKey := cache.WindowKey(cache.TagMessages, website, 7*24*time.Hour)
	fetches := 0
	countMessages := func(context.Context) (int, error) {
		fetches++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		n, err := cache.Fetch(ctx, c, windowKey, cache.TTLAggregate, cache.TagMessages, countMessages)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s = %d (fetches so far: %d)\n", windowKey, n, fetches)
		if i == 1 {
			c.InvalidateTag(cache.TagMessages)
			fmt.Fprintf(out, "  invalidated %s\n", cache.TagMessages)
		}
	}

	s := c.Stats()
	fmt.Fprintf(out, "stats: hits=%d misses=%d sets=%d invalidations=%d\n", s.Hits, s.Misses, s.Sets, s.Invalidations)
	return nil
}
