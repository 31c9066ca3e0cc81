// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the bursts of events editors emit on save.
const DefaultReloadDebounce = 200 * time.Millisecond

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is how long to wait after the last change before reloading.
	// Default: DefaultReloadDebounce.
	Debounce time.Duration

	// Lookup supplies environment overrides, usually os.LookupEnv. Nil skips
	// the environment.
	Lookup func(string) (string, bool)

	// OnReload receives every successfully loaded and validated config.
	OnReload func(Config)

	// OnError receives load and validation failures. Optional.
	OnError func(error)
}

// Watcher reloads a config file when it changes on disk.
//
// # Description
//
// The file's directory is watched rather than the file, so saves that
// replace the file by rename are seen. Only fields that are safe to change
// on a running process should be applied by OnReload; the pipeline shape
// (rate, workers, interval) is fixed for the life of a run.
//
// # Thread Safety
//
// OnReload and OnError are called from the watcher's goroutine, one at a
// time. Start and Stop may be called from any goroutine.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	opts     WatcherOptions
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher for path. It does not start watching.
//
// # Outputs
//
//   - *Watcher: Ready to Start.
//   - error: Non-nil if OnReload is nil or the directory cannot be watched.
func NewWatcher(path string, opts WatcherOptions) (*Watcher, error) {
	if opts.OnReload == nil {
		return nil, errors.New("config: watcher needs an OnReload callback")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultReloadDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create the file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:    abs,
		watcher: fw,
		opts:    opts,
		done:    make(chan struct{}),
	}, nil
}

// Start processes file events until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop ends the watcher and waits for its goroutine. Safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.opts.Debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.fail(err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.fail(err)
		return
	}
	if w.opts.Lookup != nil {
		if err := cfg.ApplyEnv(w.opts.Lookup); err != nil {
			w.fail(err)
			return
		}
	}
	if err := cfg.Validate(); err != nil {
		w.fail(err)
		return
	}
	w.opts.OnReload(cfg)
}

func (w *Watcher) fail(err error) {
	if w.opts.OnError != nil {
		w.opts.OnError(err)
	}
}
