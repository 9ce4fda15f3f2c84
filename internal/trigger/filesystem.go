package trigger

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cronjure/pkg/logx"
)

// ChangeOp selects which filesystem changes activate a FileSystemTrigger.
type ChangeOp uint8

const (
	Created ChangeOp = 1 << iota
	Changed
	Deleted
	Renamed

	AllChanges = Created | Changed | Deleted | Renamed
)

func (o ChangeOp) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	for _, p := range []struct {
		op   ChangeOp
		name string
	}{{Created, "created"}, {Changed, "changed"}, {Deleted, "deleted"}, {Renamed, "renamed"}} {
		if o&p.op != 0 {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseChangeOps maps names like "created" or "changed" to a mask.
func ParseChangeOps(names []string) (ChangeOp, error) {
	var out ChangeOp
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "created", "create":
			out |= Created
		case "changed", "change", "write":
			out |= Changed
		case "deleted", "delete", "remove":
			out |= Deleted
		case "renamed", "rename":
			out |= Renamed
		case "all", "*":
			out |= AllChanges
		default:
			return 0, fmt.Errorf("trigger: unknown change %q", n)
		}
	}
	return out, nil
}

const (
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// FileSystemTrigger fires when entries in a directory matching a glob change.
type FileSystemTrigger struct {
	dir    string
	filter string
	ops    ChangeOp
	opts   options
	log    logx.Logger
	deb    *debouncer
	errs   *errReporter

	mu       sync.Mutex
	seen     map[string]time.Time
	renameAt time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFileSystemTrigger watches path. If path is an existing file its parent
// directory is watched and filter is replaced by the file name. An empty
// filter matches everything; ops == 0 selects all changes.
func NewFileSystemTrigger(path, filter string, ops ChangeOp, opts ...Option) (*FileSystemTrigger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("trigger: empty watch path")
	}
	dir := filepath.Clean(path)
	if st, err := os.Stat(dir); err == nil && !st.IsDir() {
		filter = filepath.Base(dir)
		dir = filepath.Dir(dir)
	}
	if strings.TrimSpace(filter) == "" {
		filter = "*"
	}
	if _, err := filepath.Match(filter, ""); err != nil {
		return nil, fmt.Errorf("trigger: filter %q: %w", filter, err)
	}
	if ops == 0 {
		ops = AllChanges
	}

	o := buildOptions(opts)
	log := o.log.With(logx.String("comp", "trigger.fs"), logx.String("dir", dir), logx.String("filter", filter))
	o.log = log
	return &FileSystemTrigger{
		dir:    dir,
		filter: filter,
		ops:    ops,
		opts:   o,
		log:    log,
		deb:    newDebouncer(o),
		errs:   newErrReporter(log, errorReportEvery),
		seen:   make(map[string]time.Time),
	}, nil
}

func (t *FileSystemTrigger) Dir() string    { return t.dir }
func (t *FileSystemTrigger) Filter() string { return t.filter }
func (t *FileSystemTrigger) Ops() ChangeOp  { return t.ops }

// Start creates the watcher synchronously so a missing directory is reported
// to the caller; later watcher failures are healed in the background.
func (t *FileSystemTrigger) Start(cb Callback) error {
	if cb == nil {
		return ErrNilCallback
	}
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.cancel != nil {
		return ErrAlreadyStarted
	}

	w, err := t.openWatcher()
	if err != nil {
		return err
	}

	t.mu.Lock()
	clear(t.seen)
	t.renameAt = time.Time{}
	t.mu.Unlock()

	t.deb.arm(cb)
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, w, t.done)

	t.log.Debug("filesystem trigger started", logx.String("ops", t.ops.String()))
	return nil
}

func (t *FileSystemTrigger) Stop() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.cancel == nil {
		return
	}
	t.deb.disarm()
	t.cancel()
	<-t.done
	t.cancel, t.done = nil, nil
}

func (t *FileSystemTrigger) openWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("trigger: new watcher: %w", err)
	}
	if err := w.Add(t.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("trigger: watch %s: %w", t.dir, err)
	}
	return w, nil
}

// run pumps watcher events until ctx ends, recreating the watcher with
// jittered backoff whenever its channels close.
func (t *FileSystemTrigger) run(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		if w == nil {
			nw, err := t.openWatcher()
			if err != nil {
				t.errs.report("watcher restart failed", err)
				wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
				backoff = min(backoff*2, restartBackoffMax)
				select {
				case <-ctx.Done():
					return
				case <-t.opts.clock.After(wait):
					continue
				}
			}
			w = nw
			backoff = restartBackoffBase
			t.log.Debug("watcher restarted")
		}

		if !t.pump(ctx, w) {
			_ = w.Close()
			return
		}
		_ = w.Close()
		w = nil
		t.log.Warn("watcher channels closed; recreating")
	}
}

// pump returns false when ctx is done and true when the watcher broke.
func (t *FileSystemTrigger) pump(ctx context.Context, w *fsnotify.Watcher) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-w.Events:
			if !ok {
				return true
			}
			t.handle(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return true
			}
			if err != nil {
				t.errs.report("watcher error", err)
			}
		}
	}
}

func (t *FileSystemTrigger) matches(name string) bool {
	ok, err := filepath.Match(t.filter, filepath.Base(name))
	return err == nil && ok
}

func classify(ev fsnotify.Event) (ChangeOp, bool) {
	switch {
	case ev.Has(fsnotify.Rename):
		return Renamed, true
	case ev.Has(fsnotify.Create):
		return Created, true
	case ev.Has(fsnotify.Remove):
		return Deleted, true
	case ev.Has(fsnotify.Write):
		return Changed, true
	default:
		return 0, false
	}
}

func (t *FileSystemTrigger) handle(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	kind, ok := classify(ev)
	now := t.opts.clock.Now()

	t.mu.Lock()
	// Only the event right after a reported Rename can be its new name.
	completes := ok && kind == Created && !t.renameAt.IsZero() && now.Sub(t.renameAt) <= t.opts.dupWindow
	t.renameAt = time.Time{}
	if !ok || !t.matches(name) {
		t.mu.Unlock()
		return
	}
	t.prune(now)

	if kind == Renamed {
		delete(t.seen, name)
		if t.ops&Renamed == 0 {
			t.mu.Unlock()
			return
		}
		t.renameAt = now
		t.mu.Unlock()
		t.log.Trace("fs event", logx.String("path", name), logx.String("op", kind.String()))
		t.deb.activate()
		return
	}

	if completes {
		t.seen[name] = now
		t.mu.Unlock()
		return
	}

	if t.ops&kind == 0 {
		t.mu.Unlock()
		return
	}
	if last, ok := t.seen[name]; ok && now.Sub(last) < t.opts.dupWindow {
		t.mu.Unlock()
		return
	}
	t.seen[name] = now
	t.mu.Unlock()

	t.log.Trace("fs event", logx.String("path", name), logx.String("op", kind.String()))
	t.deb.activate()
}

// prune must be called with t.mu held.
func (t *FileSystemTrigger) prune(now time.Time) {
	for p, at := range t.seen {
		if now.Sub(at) > seenRetention {
			delete(t.seen, p)
		}
	}
}
