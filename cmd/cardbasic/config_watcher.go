package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stlalpha/cardbasic/internal/blink"
	"github.com/stlalpha/cardbasic/internal/config"
	"github.com/stlalpha/cardbasic/internal/logging"
	"github.com/stlalpha/cardbasic/internal/session"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 500 * time.Millisecond

// ConfigWatcher watches cardbasic.json and applies keyboard timing, blink
// period and the debug switch to the running appliance.
type ConfigWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	watcherDone chan bool
	configPath  string
	debugFlag   bool
	handler     *session.Handler
	blinker     *blink.Blinker
}

// NewConfigWatcher starts watching configPath.
func NewConfigWatcher(configPath string, debugFlag bool, handler *session.Handler, blinker *blink.Blinker) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", configPath, err)
	}
	log.Printf("INFO: Watching %s for config changes (auto-reload enabled)", configPath)

	cw := &ConfigWatcher{
		watcher:     watcher,
		watcherDone: make(chan bool),
		configPath:  configPath,
		debugFlag:   debugFlag,
		handler:     handler,
		blinker:     blinker,
	}
	go cw.watchLoop(watcher)
	return cw, nil
}

// Stop stops the watcher.
func (cw *ConfigWatcher) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.watcher == nil {
		return
	}
	close(cw.watcherDone)
	cw.watcher.Close()
	cw.watcher = nil
	log.Printf("INFO: Configuration file watcher stopped")
}

func (cw *ConfigWatcher) watchLoop(w *fsnotify.Watcher) {
	var debounceTimer *time.Timer
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Base(event.Name), config.FileName) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, cw.reload)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("ERROR: Config file watcher error: %v", err)

		case <-cw.watcherDone:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

// reload re-reads the configuration. A file that fails to parse or
// validate leaves the running settings alone.
func (cw *ConfigWatcher) reload() {
	log.Printf("INFO: Config file change detected: %s", config.FileName)
	cfg, err := config.Load(cw.configPath)
	if err != nil {
		log.Printf("WARN: Keeping current settings: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("WARN: Keeping current settings, new configuration is invalid: %v", err)
		return
	}

	logging.Init(cw.debugFlag, cfg.Debug)
	cw.blinker.SetPeriod(cfg.BlinkPeriod())

	old := cw.handler.Settings()
	next := settingsFrom(cfg)
	if next.Rows != old.Rows || next.Cols != old.Cols {
		log.Printf("INFO: Panel size %dx%d applies to new sessions only", next.Cols, next.Rows)
	}
	cw.handler.Apply(next)
	log.Printf("INFO: Configuration reloaded (long press %d polls, blink %s)",
		next.LongThreshold, cfg.BlinkPeriod())
}
