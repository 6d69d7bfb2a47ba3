package netguard

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"multiview/internal/adblock"
)

// ListLoader reads filter-list files into the rule engine and keeps them
// fresh. Watch reloads all lists whenever any of them changes on disk.
type ListLoader struct {
	engine  *adblock.Engine
	paths   []string
	builtin bool
	logger  *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
}

// NewListLoader constructs a loader. When builtin is true the bundled
// default rules are prepended to whatever the files contribute.
func NewListLoader(engine *adblock.Engine, paths []string, builtin bool, logger *zap.Logger) *ListLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListLoader{
		engine:  engine,
		paths:   paths,
		builtin: builtin,
		logger:  logger,
	}
}

// Load parses every configured list and atomically swaps the engine's rule
// set. A file that cannot be read fails the whole load; parse warnings are
// logged and the valid rules kept.
func (l *ListLoader) Load() error {
	var rules []*adblock.Rule
	if l.builtin {
		rules = append(rules, adblock.DefaultRules()...)
	}

	for _, path := range l.paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read filter list %s: %w", path, err)
		}
		res := adblock.ParseList(filepath.Base(path), string(data))
		for _, w := range res.Warnings {
			l.logger.Warn("filter list warning",
				zap.String("list", path),
				zap.Int("line", w.Line),
				zap.String("reason", w.Reason))
		}
		rules = append(rules, res.Rules...)
	}

	l.engine.Load(rules)
	l.logger.Info("filter lists loaded",
		zap.Int("lists", len(l.paths)),
		zap.Int("rules", len(rules)),
		zap.Bool("builtin", l.builtin))
	return nil
}

// Watch starts a filesystem watcher over the configured lists and reloads
// them on change. Reloads are debounced so editors that write in several
// steps trigger a single load. Watch is a no-op when there are no lists.
func (l *ListLoader) Watch() error {
	if len(l.paths) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the parent directories; editors commonly replace files by
	// rename, which drops a watch placed on the file itself.
	dirs := map[string]struct{}{}
	for _, path := range l.paths {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.run(watcher)
	return nil
}

// Close stops the watcher.
func (l *ListLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}

func (l *ListLoader) run(watcher *fsnotify.Watcher) {
	watched := map[string]struct{}{}
	for _, path := range l.paths {
		watched[filepath.Clean(path)] = struct{}{}
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if _, tracked := watched[filepath.Clean(ev.Name)]; !tracked {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			l.scheduleReload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("filter list watcher error", zap.Error(err))
		}
	}
}

func (l *ListLoader) scheduleReload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(250*time.Millisecond, func() {
		if err := l.Load(); err != nil {
			l.logger.Error("filter list reload failed", zap.Error(err))
		}
	})
}
