package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goliatone/go-result-cache/cache"
)

type stressOptions struct {
	Writers int
	Readers int
	Ops     int
}

type stressReport struct {
	Keys        int         `json:"keys"`
	Invalidated int         `json:"invalidated"`
	StillCached int         `json:"still_cached"`
	Elapsed     string      `json:"elapsed"`
	Stats       cache.Stats `json:"stats"`
}

var errStressViolation = errors.New("invalidated keys are still cached")

func newStressCommand(v *viper.Viper) *cobra.Command {
	opts := stressOptions{}
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Tag keys concurrently, invalidate once, and verify every key misses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, logger, err := newCoordinator(v)
			if err != nil {
				return err
			}
			defer c.Close()
			return runStress(cmd.OutOrStdout(), c, logger, opts)
		},
	}
	cmd.Flags().IntVar(&opts.Writers, "writers", 8, "concurrent SetAndTag goroutines")
	cmd.Flags().IntVar(&opts.Readers, "readers", 8, "concurrent Get goroutines")
	cmd.Flags().IntVar(&opts.Ops, "ops", 10_000, "keys written by each writer")
	return cmd
}

func runStress(out io.Writer, c *cache.Coordinator, logger *slog.Logger, opts stressOptions) error {
	if opts.Writers < 1 || opts.Readers < 0 || opts.Ops < 1 {
		return fmt.Errorf("writers and ops must be positive, readers must not be negative")
	}

	run := uuid.NewString()
	keyFor := func(w, i int) string {
		return cache.QueryKey(cache.TagThreads, run, fmt.Sprintf("w%d", w), cache.Page(i))
	}

	start := time.Now()
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < opts.Readers; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c.Get(keyFor(rand.IntN(opts.Writers), rand.IntN(opts.Ops)))
				}
			}
		}()
	}

	var writers sync.WaitGroup
	for w := 0; w < opts.Writers; w++ {
		writers.Add(1)
		go func(w int) {
			defer writers.Done()
			for i := 0; i < opts.Ops; i++ {
				c.SetAndTag(keyFor(w, i), i, cache.TTLDefault, cache.TagThreads)
			}
		}(w)
	}

	writers.Wait()
	keys := c.InvalidateTag(cache.TagThreads)
	close(stop)
	readers.Wait()

	report := stressReport{
		Keys:        opts.Writers * opts.Ops,
		Invalidated: len(keys),
		Elapsed:     time.Since(start).String(),
	}
	for _, key := range keys {
		if _, ok := c.Get(key); ok {
			report.StillCached++
		}
	}
	report.Stats = c.Stats()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if report.StillCached > 0 {
		logger.Error("stress run failed", "still_cached", report.StillCached)
		return errStressViolation
	}
	if report.Invalidated != report.Keys {
		logger.Error("stress run failed", "expected", report.Keys, "invalidated", report.Invalidated)
		return fmt.Errorf("invalidation returned %d of %d keys", report.Invalidated, report.Keys)
	}
	return nil
}
