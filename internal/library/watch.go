package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/himanishpuri/KaraokeCore/pkg/logger"
)

// DefaultSettle is how long a song folder must stay quiet before it is
// rescanned.
const DefaultSettle = 500 * time.Millisecond

// Importer receives rescanned songs.
type Importer interface {
	Import(songs []*model.Song) (int, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

type watchConfig struct {
	settle   time.Duration
	log      Logger
	onImport func(n int, err error)
}

type WatchOption func(*watchConfig)

func WithSettle(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		if d > 0 {
			c.settle = d
		}
	}
}

func WithWatchLogger(log Logger) WatchOption {
	return func(c *watchConfig) {
		c.log = log
	}
}

// WithImportHook is called after every import with the number of songs
// written and the scan or import error, if any.
func WithImportHook(fn func(n int, err error)) WatchOption {
	return func(c *watchConfig) {
		c.onImport = fn
	}
}

// Watch imports root once and then again whenever a song folder or config
// changes, until ctx is done. Bursts of events are coalesced into one rescan
// after the folder has been quiet for the settle period.
func Watch(ctx context.Context, root string, target Importer, opts ...WatchOption) error {
	cfg := &watchConfig{settle: DefaultSettle}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.GetLogger().With("library")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, root); err != nil {
		return err
	}

	rescan := func() {
		songs, scanErr := ScanDir(root)
		n, err := 0, scanErr
		if len(songs) > 0 {
			var importErr error
			n, importErr = target.Import(songs)
			if importErr != nil {
				err = importErr
			}
		}
		if err != nil {
			cfg.log.Warnf("Rescan of %s: %v", root, err)
		} else {
			cfg.log.Infof("Rescanned %s: %d song(s)", root, n)
		}
		if cfg.onImport != nil {
			cfg.onImport(n, err)
		}
	}
	rescan()

	timer := time.NewTimer(cfg.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				// new song folders need their own watch
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						cfg.log.Warnf("Watching %s: %v", event.Name, err)
					}
				}
			}
			cfg.log.Debugf("Library change: %s", event)
			timer.Reset(cfg.settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cfg.log.Warnf("Watcher error: %v", err)

		case <-timer.C:
			rescan()
		}
	}
}

// addTree watches root and each song folder directly below it.
func addTree(watcher *fsnotify.Watcher, root string) error {
	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("scanning song folders: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := watcher.Add(filepath.Join(root, e.Name())); err != nil {
			return fmt.Errorf("watching %s: %w", e.Name(), err)
		}
	}
	return nil
}
