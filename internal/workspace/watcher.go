package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher restages a local file onto a virtual path every time it is
// written.
type Watcher struct {
	ws      *Workspace
	watcher *fsnotify.Watcher
	local   string
	target  string
	// Staged receives the virtual path after each successful restage.
	// Sends are dropped when nobody is listening.
	Staged chan string
}

// NewWatcher watches the directory holding local so editors that replace
// the file by renaming are still seen.
func NewWatcher(ws *Workspace, local, target string) (*Watcher, error) {
	abs, err := filepath.Abs(local)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", local, err)
	}
	if _, err := ws.fileAddress(target); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("adding directory to watcher: %w", err)
	}

	return &Watcher{
		ws:      ws,
		watcher: watcher,
		local:   abs,
		target:  target,
		Staged:  make(chan string, 1),
	}, nil
}

// Run processes filesystem events until ctx is done. The file is staged
// once up front when it exists.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if _, err := os.Stat(w.local); err == nil {
		w.restage(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.local {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.restage(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.ws.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) restage(ctx context.Context) {
	data, err := os.ReadFile(w.local)
	if err != nil {
		w.ws.logger.Warn("reading watched file", zap.String("file", w.local), zap.Error(err))
		return
	}
	if err := w.ws.Put(ctx, w.target, string(data)); err != nil {
		w.ws.logger.Warn("restaging watched file", zap.String("path", w.target), zap.Error(err))
		return
	}
	w.ws.logger.Info("file restaged", zap.String("file", w.local), zap.String("path", w.target))

	select {
	case w.Staged <- w.target:
	default:
	}
}
