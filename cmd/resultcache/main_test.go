package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/goliatone/go-result-cache/cache"
)

func newTestCoordinator(t *testing.T) *cache.Coordinator {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.Capacity = 50_000
	cfg.NumShards = 16
	cfg.SweepInterval = 0
	c, err := cache.NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("failed to create coordinator: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("RESULTCACHE_CAPACITY", "500")
	t.Setenv("RESULTCACHE_SWEEP_INTERVAL", "30s")

	v := viper.New()
	if err := bindConfig(v, newRootCommand(io.Discard)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := loadConfig(v, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capacity != 500 {
		t.Errorf("expected capacity from env, got %d", cfg.Capacity)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("expected sweep interval from env, got %v", cfg.SweepInterval)
	}
	if cfg.NumShards != cache.DefaultConfig().NumShards {
		t.Errorf("expected default shards, got %d", cfg.NumShards)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("RESULTCACHE_SHARDS", "0")

	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"demo"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected invalid configuration to fail")
	}
}

func TestRunDemo(t *testing.T) {
	var out bytes.Buffer
	if err := runDemo(context.Background(), &out, newTestCoordinator(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"hit   plan_7",
		"miss  plan_7",
		"invalidated plans: 2 keys",
		"miss  plans_search:foo_page1",
		"hit   websites_list_page1",
		"(fetches so far: 2)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected demo output to contain %q:\n%s", want, got)
		}
	}
}

func TestRunStress(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := runStress(&out, newTestCoordinator(t), logger, stressOptions{Writers: 4, Readers: 4, Ops: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out.String())
	}

	var report stressReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.Keys != 2000 || report.Invalidated != 2000 || report.StillCached != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestRunStress_RejectsBadOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := runStress(io.Discard, newTestCoordinator(t), logger, stressOptions{}); err == nil {
		t.Error("expected error for zero writers")
	}
}
