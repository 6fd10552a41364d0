package artifacts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听制品目录,外部写入新版本时热加载
type Watcher struct {
	fw     *fsnotify.Watcher
	store  *Store
	handle *Handle
	onSwap func(*Pair)
	done   chan struct{}
}

// WatchStore starts watching the store directory. onSwap, when non-nil, is
// called after a newer pair was installed into the handle.
func WatchStore(store *Store, handle *Handle, onSwap func(*Pair)) (*Watcher, error) {
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start artifact watcher: %w", err)
	}
	if err := fw.Add(store.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", store.Dir(), err)
	}
	w := &Watcher{fw: fw, store: store, handle: handle, onSwap: onSwap, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != manifestFile {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.reload()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			zap.L().Warn("artifact watcher error", zap.Error(err))
		}
	}
}

// reload swaps in the stored pair when it is newer than the current one.
// Save writes the manifest last, so by the time the manifest event fires
// the detector and scaler files are complete.
func (w *Watcher) reload() {
	pair, err := w.store.Load()
	if err != nil {
		zap.L().Warn("artifact reload failed", zap.Error(err))
		return
	}
	if cur := w.handle.Current(); cur != nil && cur.Meta.Version >= pair.Meta.Version {
		return
	}
	w.handle.Swap(pair)
	zap.L().Info("artifacts reloaded",
		zap.Int64("version", pair.Meta.Version),
		zap.Time("trained_at", pair.Meta.TrainedAt))
	if w.onSwap != nil {
		w.onSwap(pair)
	}
}

// Close stops the watcher and waits for the loop to exit.
func (w *Watcher) Close() {
	w.fw.Close()
	<-w.done
}
