package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/swap"
)

// DefaultSettle is how long a bundle file must stay quiet after its
// last write before it is activated. Uploads via scp or rsync arrive in
// many write events; activating mid-copy would load a torn archive.
const DefaultSettle = 500 * time.Millisecond

// Watcher activates bundle archives dropped into a directory. Each
// settled *.zip file becomes the store's active location, the same as
// an operator calling SetLocation by hand.
type Watcher struct {
	store  *swap.Store
	fsw    *fsnotify.Watcher
	dir    string
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher over dir. settle <= 0 uses DefaultSettle.
func New(store *swap.Store, dir string, settle time.Duration) (*Watcher, error) {
	if settle <= 0 {
		settle = DefaultSettle
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.New(errors.PhaseWatch, errors.KindStorageIO).
			Cause(err).
			Detail("create watcher").
			Build()
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, errors.New(errors.PhaseWatch, errors.KindBadLocation).
			Location(dir).
			Cause(err).
			Build()
	}

	return &Watcher{
		store:   store,
		fsw:     fsw,
		dir:     dir,
		settle:  settle,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	Logger().Info("watching drop-in directory", zap.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			Logger().Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".zip") {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[ev.Name]; ok {
		t.Reset(w.settle)
		return
	}
	path := ev.Name
	w.pending[path] = time.AfterFunc(w.settle, func() { w.activate(path) })
}

func (w *Watcher) activate(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		// renamed away or deleted before it settled
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		Logger().Warn("cannot resolve dropped bundle", zap.String("path", path), zap.Error(err))
		return
	}

	w.store.SetLocation(abs)
	Logger().Info("activated dropped bundle",
		zap.String("location", abs),
		zap.String("version", w.store.Version()))
}

// Close stops event delivery. Pending settle timers may still fire.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
