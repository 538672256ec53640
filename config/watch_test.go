package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// rewriteUntil keeps touching the file until done fires, so the test does not depend on
// when the watcher finished registering.
func rewriteUntil(t *testing.T, path, content string, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatalf("watcher did not fire")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	w := &Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan AppConfig, 1)
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case got <- cfg:
			default:
			}
		})
	}()

	done := make(chan struct{})
	var cfg AppConfig
	go func() {
		cfg = <-got
		close(done)
	}()
	rewriteUntil(t, path, strings.Replace(sampleConfig, "env: dev", "env: staging", 1), done)
	if cfg.Env != "staging" {
		t.Fatalf("expected reloaded env, got %q", cfg.Env)
	}
}

func TestWatcherReportsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	errs := make(chan error, 1)
	w := &Watcher{Path: path, OnError: func(err error) {
		select {
		case errs <- err:
		default:
		}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Start(ctx, func(AppConfig) { t.Error("invalid config must not be delivered") })
	}()

	done := make(chan struct{})
	var reported error
	go func() {
		reported = <-errs
		close(done)
	}()
	rewriteUntil(t, path, "env: \"\"\n", done)
	if reported == nil {
		t.Fatal("expected reload error")
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	w := &Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Start(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
