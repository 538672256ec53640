package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on write/create events.
// The parent directory is watched so editors that replace the file by rename are seen too.
type Watcher struct {
	Path     string
	Cooldown time.Duration // 冷却时间，避免频繁更新
	OnError  func(error)

	lastReload time.Time
}

// Start blocks until ctx is done; onUpdate receives every config that loads and validates.
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// 只处理写入和创建事件
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload(onUpdate)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.fail(fmt.Errorf("watcher: %w", err))
		}
	}
}

func (w *Watcher) reload(onUpdate func(AppConfig)) {
	if time.Since(w.lastReload) < w.Cooldown {
		return
	}
	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		w.fail(fmt.Errorf("reload %s: %w", w.Path, err))
		return
	}
	w.lastReload = time.Now()
	if onUpdate != nil {
		onUpdate(cfg)
	}
}

func (w *Watcher) fail(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}
