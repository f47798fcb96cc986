// Copyright 2025 Switchyard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches the configuration file for changes and reloads the
// Manager when modifications are detected. The fresh Config is handed
// to a callback so runtime-adjustable settings (the log level, say) can
// take effect without a restart. Structural settings such as the worker
// count still need one.
type Watcher struct {
	// manager is reloaded on changes
	manager *Manager

	// path of the watched config file
	path string

	// onReload receives the configuration after a successful reload
	onReload func(Config)

	// watcher is the fsnotify file watcher
	watcher *fsnotify.Watcher

	// debounceDelay is the time to wait before reloading after a change
	// (prevents multiple reloads for rapid successive writes)
	debounceDelay time.Duration

	logger zerolog.Logger

	// mu protects the debounce timer
	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a configuration file watcher. Changes are
// debounced so editors that write in several bursts trigger a single
// reload.
func NewWatcher(manager *Manager, path string, onReload func(Config), logger zerolog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config: no file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		manager:       manager,
		path:          path,
		onReload:      onReload,
		watcher:       watcher,
		debounceDelay: 250 * time.Millisecond,
		logger:        logger.With().Str("component", "config.watcher").Logger(),
	}, nil
}

// Start begins watching the configuration file for changes.
//
// This method blocks until the context is canceled. It should be run
// in a separate goroutine:
//
//	go watcher.Start(ctx)
//
// Multiple rapid changes are coalesced into a single reload.
func (w *Watcher) Start(ctx context.Context) error {
	// Watch the parent directory rather than the file itself: editors
	// and deploy tooling replace config files by rename, and a watch on
	// the old inode would go stale.
	configDir := filepath.Dir(w.path)
	configFile := filepath.Base(w.path)

	if err := w.watcher.Add(configDir); err != nil {
		w.logger.Error().
			Err(err).
			Str("dir", configDir).
			Msg("Failed to watch config directory")
		return err
	}

	w.logger.Info().
		Str("file", w.path).
		Dur("debounce", w.debounceDelay).
		Msg("Started watching config file")

	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
		w.logger.Info().Msg("Stopped watching config file")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			// Ignore other files living in the same directory.
			if filepath.Base(event.Name) != configFile {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.logger.Debug().
					Str("op", event.Op.String()).
					Str("file", event.Name).
					Msg("Detected config file change")

				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn().
				Err(err).
				Msg("File watcher error")
		}
	}
}

// scheduleReload schedules a reload after the debounce delay. If a
// reload is already scheduled, the timer is reset.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		if err := w.manager.Reload(); err != nil {
			w.logger.Error().
				Err(err).
				Msg("Failed to reload configuration, keeping previous one")
			return
		}

		w.logger.Info().Msg("Configuration reloaded")
		if w.onReload != nil {
			w.onReload(w.manager.Get())
		}
	})
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
