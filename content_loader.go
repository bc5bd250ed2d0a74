package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	contentLoadLimit     = 4
	contentWatchDebounce = 500 * time.Millisecond
)

var errNoContentFiles = errors.New("no content files")

func isContentFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// loadContentPools parses every YAML pack at the top of fsys concurrently
// and merges them in file-name order.
func loadContentPools(ctx context.Context, fsys fs.FS) (*ContentPools, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read content dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isContentFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, errNoContentFiles
	}
	sort.Strings(files)

	parts := make([]*ContentPools, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(contentLoadLimit)
	for i, name := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := fs.ReadFile(fsys, name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			var p ContentPools
			if err := yaml.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			parts[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &ContentPools{}
	for _, p := range parts {
		out.merge(p)
	}
	return out, nil
}

// loadPoolsOrBuiltin never fails: a missing or broken pack directory falls
// back to the embedded pools, and partial packs are filled from them.
func loadPoolsOrBuiltin(ctx context.Context, dir string) *ContentPools {
	builtin := builtinPools()
	if strings.TrimSpace(dir) == "" {
		return builtin
	}
	p, err := loadContentPools(ctx, os.DirFS(dir))
	if err != nil {
		logger.Warn("content pack unusable, using built-in pools", zap.String("dir", dir), zap.Error(err))
		return builtin
	}
	for _, issue := range lintPlaceholders(p) {
		logger.Debug("unknown placeholder in content pack", zap.String("dir", dir), zap.String("issue", issue))
	}
	return p.withFallback(builtin)
}

// contentWatcher reloads the pack directory after edits settle and swaps the
// result into the store.
type contentWatcher struct {
	mu       sync.Mutex
	store    *Store
	dir      string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	reloads  int
}

func newContentWatcher(store *Store, dir string) (*contentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create content watcher: %w", err)
	}
	return &contentWatcher{
		store:    store,
		dir:      dir,
		watcher:  w,
		debounce: contentWatchDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

func (cw *contentWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = true
	cw.mu.Unlock()

	if err := cw.watcher.Add(cw.dir); err != nil {
		cw.mu.Lock()
		cw.running = false
		cw.mu.Unlock()
		return fmt.Errorf("watch %s: %w", cw.dir, err)
	}
	logger.Info("watching content pack", zap.String("dir", cw.dir))
	go cw.run(ctx)
	return nil
}

// Stop ends the loop and waits for it to exit.
func (cw *contentWatcher) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		_ = cw.watcher.Close()
		return
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.stopCh)
	<-cw.doneCh
	if err := cw.watcher.Close(); err != nil {
		logger.Warn("close content watcher", zap.Error(err))
	}
}

func (cw *contentWatcher) Reloads() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.reloads
}

func (cw *contentWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	timer := time.NewTimer(cw.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !isContentFile(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("content pack changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(cw.debounce)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("content watcher error", zap.Error(err))
		case <-timer.C:
			cw.reload(ctx)
		}
	}
}

func (cw *contentWatcher) reload(ctx context.Context) {
	pools := loadPoolsOrBuiltin(ctx, cw.dir)
	cw.store.setPools(pools)
	cw.mu.Lock()
	cw.reloads++
	cw.mu.Unlock()
	logger.Info("content pack reloaded", zap.String("dir", cw.dir))
}
