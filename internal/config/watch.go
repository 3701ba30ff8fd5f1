package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "shadowcal/internal/log"
)

const (
	watchDebounce      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watch reloads the config at path whenever the file changes and passes
// each successfully loaded config to onChange. Invalid edits are logged
// and ignored. It blocks until ctx is done.
// The parent directory is watched so a rename over the file is seen.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			cfg, err := Load(path)
			if err != nil {
				appLog.Warn("config reload failed; keeping previous", "path", path, "error", err.Error())
				return
			}
			appLog.Info("config reloaded", "path", path)
			onChange(cfg)
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	backoff := restartBackoffBase
	wait := func() bool {
		d := backoff
		if backoff < restartBackoffMax {
			backoff = min(backoff*2, restartBackoffMax)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			appLog.Warn("config watch init failed", "dir", dir, "error", err.Error())
			if !wait() {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			appLog.Warn("config watch add failed", "dir", dir, "error", err.Error())
			if !wait() {
				return nil
			}
			continue
		}
		backoff = restartBackoffBase
		appLog.Debug("config watcher started", "dir", dir, "file", file)

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					appLog.Warn("config watch overflow; forcing reload", "dir", dir)
					reload()
					continue
				}
				appLog.Warn("config watch error", "dir", dir, "error", err.Error())
			}
		}

		_ = w.Close()
		appLog.Warn("config watcher stopped; restarting", "dir", dir, "backoff", backoff.String())
		if !wait() {
			return nil
		}
	}
	return nil
}
