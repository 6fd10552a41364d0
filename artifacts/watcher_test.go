package artifacts

import (
	"testing"
	"time"
)

func TestWatchStoreReloadsNewVersion(t *testing.T) {
	store := NewStore(t.TempDir())
	handle := NewHandle()

	swapped := make(chan *Pair, 4)
	watcher, err := WatchStore(store, handle, func(p *Pair) { swapped <- p })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer watcher.Close()

	pair, _ := fittedPair(t)
	pair.Meta.Version = 100
	if err := store.Save(pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-swapped:
		if got.Meta.Version != 100 {
			t.Fatalf("expected version 100, got %d", got.Meta.Version)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload after manifest write")
	}

	current := handle.Current()
	if current == nil || current.Meta.Version != 100 {
		t.Fatal("expected handle to hold reloaded pair")
	}
}

func TestWatchStoreIgnoresOlderVersion(t *testing.T) {
	store := NewStore(t.TempDir())
	handle := NewHandle()

	swapped := make(chan *Pair, 4)
	watcher, err := WatchStore(store, handle, func(p *Pair) { swapped <- p })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer watcher.Close()

	pair, _ := fittedPair(t)
	pair.Meta.Version = 200
	if err := store.Save(pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-swapped:
	case <-time.After(3 * time.Second):
		t.Fatal("expected initial reload")
	}

	older, _ := fittedPair(t)
	older.Meta.Version = 150
	if err := store.Save(older); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-swapped:
		t.Fatalf("expected older version to be ignored, got swap to %d", got.Meta.Version)
	case <-time.After(500 * time.Millisecond):
	}

	if handle.Current().Meta.Version != 200 {
		t.Fatalf("expected version 200 to stay active, got %d", handle.Current().Meta.Version)
	}
}
