// Package clean removes build descriptors that a previous generator run
// produced but the current run no longer does, invalidates the generator
// cache, and records the new baseline.
//
// A run moves through Idle, Loaded, Diffed, Cleaned, Persisted and Done with
// no branching. A failed record read or write ends the run. Removal
// problems are reported per path and never stop the sequence.
package clean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/artifact"
	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/state"
	"github.com/Beerjiw/okbuck/internal/log"
	"github.com/Beerjiw/okbuck/pkg/config"
	"github.com/Beerjiw/okbuck/pkg/reconcile"
	"github.com/gofrs/flock"
)

// ErrLocked is returned when the record lock cannot be acquired.
var ErrLocked = errors.New("another cleanup run holds the state lock")

// ErrEscapesRoot marks an entry whose descriptor would lie outside the root.
var ErrEscapesRoot = errors.New("entry resolves outside the project root")

// ErrInvalidOptions is returned by Run before anything is touched when the
// options would remove more than descriptors and the cache.
var ErrInvalidOptions = errors.New("invalid cleanup options")

const lockRetryDelay = 100 * time.Millisecond

// Options locates the files a run touches.
type Options struct {
	// Root is the project root directory.
	Root string
	// StateFile is the record path; relative paths resolve against Root.
	StateFile string
	// DescriptorName is the descriptor file inside each entry directory.
	DescriptorName string
	// CacheDir is removed on every run; relative paths resolve against Root.
	CacheDir string
	// Workers bounds concurrent descriptor deletions.
	Workers int
	// Lock holds an advisory lock on StateFile+".lock" for the whole run.
	Lock bool
}

// OptionsFromConfig builds Options for the project at root.
func OptionsFromConfig(root string, cfg *config.Config) Options {
	return Options{
		Root:           root,
		StateFile:      cfg.State.File,
		DescriptorName: cfg.Descriptor.FileName,
		CacheDir:       cfg.Cache.Dir,
		Workers:        cfg.Clean.Workers,
		Lock:           cfg.LockEnabled(),
	}
}

// StatePath returns the record location, resolved against Root.
func (o Options) StatePath() string {
	return o.resolve(o.StateFile)
}

// CachePath returns the cache directory location.
func (o Options) CachePath() string {
	return o.resolve(o.CacheDir)
}

// validate rejects a descriptor name that is not a single file name and a
// cache directory that is, or contains, the project root.
func (o Options) validate() error {
	name := o.DescriptorName
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: descriptor name %q must be a plain file name", ErrInvalidOptions, name)
	}
	root := filepath.Clean(o.Root)
	cache := filepath.Clean(o.CachePath())
	if rel, err := filepath.Rel(cache, root); err == nil && filepath.IsLocal(rel) {
		return fmt.Errorf("%w: cache directory %s would remove the project root", ErrInvalidOptions, cache)
	}
	return nil
}

func (o Options) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(o.Root, p)
}

// DescriptorPath returns root/id/name. Entries that are absolute or climb
// out of root are rejected with ErrEscapesRoot.
func DescriptorPath(root string, id state.EntryID, name string) (string, error) {
	rel := filepath.FromSlash(string(id))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, id)
	}
	return filepath.Join(root, rel, name), nil
}

// Report describes one completed run.
type Report struct {
	Previous            int               `json:"previous"`
	Current             int               `json:"current"`
	Stale               []state.EntryID   `json:"stale"`
	Deletions           []artifact.Result `json:"deletions"`
	Cache               artifact.Result   `json:"cache"`
	PreviousFingerprint string            `json:"previous_fingerprint"`
	Fingerprint         string            `json:"fingerprint"`
}

// Summary counts descriptor deletion outcomes.
func (r *Report) Summary() artifact.Summary {
	if r == nil {
		return artifact.Summary{}
	}
	return artifact.Summarize(r.Deletions)
}

// Failed returns every removal that was attempted and did not succeed,
// cache included.
func (r *Report) Failed() []artifact.Result {
	if r == nil {
		return nil
	}
	var failed []artifact.Result
	for _, d := range r.Deletions {
		if d.Outcome == artifact.Failed {
			failed = append(failed, d)
		}
	}
	if r.Cache.Outcome == artifact.Failed {
		failed = append(failed, r.Cache)
	}
	return failed
}

// BaselineChanged reports whether the run rewrote the record with different content.
func (r *Report) BaselineChanged() bool {
	return r != nil && r.PreviousFingerprint != r.Fingerprint
}

// Task runs the cleanup sequence.
type Task struct {
	store   state.Store
	deleter *artifact.Deleter
	opts    Options
	logger  *slog.Logger
}

// NewTask wires a task. A nil store means a line store at opts.StatePath();
// a nil deleter means artifact.NewDeleter(). Empty StateFile, DescriptorName
// and CacheDir take the config defaults.
func NewTask(store state.Store, deleter *artifact.Deleter, opts Options) *Task {
	if opts.StateFile == "" {
		opts.StateFile = config.DefaultStateFile
	}
	if opts.DescriptorName == "" {
		opts.DescriptorName = config.DefaultDescriptorName
	}
	if opts.CacheDir == "" {
		opts.CacheDir = config.DefaultCacheDir
	}
	if store == nil {
		store = state.NewLineStore(opts.StatePath())
	}
	if deleter == nil {
		deleter = artifact.NewDeleter()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Task{
		store:   store,
		deleter: deleter,
		opts:    opts,
		logger:  log.Component("clean"),
	}
}

// Run loads the previous entries, deletes descriptors of entries missing
// from current, removes the cache directory, and saves current as the new
// baseline. If ctx ends before the deletions finish, the record is left as
// it was so the next run retries the same deletions.
func (t *Task) Run(ctx context.Context, current state.Set) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.opts.validate(); err != nil {
		return nil, err
	}
	if current == nil {
		current = state.NewSet()
	}
	if err := state.ValidateEntries(current); err != nil {
		return nil, err
	}

	unlock, err := t.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	previous, err := t.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	t.logger.Debug("loaded previous entries", "count", previous.Cardinality(), "path", t.store.Path())

	stale := reconcile.Sorted(reconcile.Stale(previous, current))
	t.logger.Debug("computed stale entries", "count", len(stale))

	report := &Report{
		Previous:            previous.Cardinality(),
		Current:             current.Cardinality(),
		Stale:               stale,
		PreviousFingerprint: state.Fingerprint(previous),
	}

	report.Deletions, err = reconcile.Sweep(ctx, stale, t.opts.Workers, t.deleteDescriptor)
	if err != nil {
		t.markSkipped(report, err)
		return report, fmt.Errorf("cleanup interrupted, state left unchanged: %w", err)
	}

	report.Cache = t.deleter.Delete(t.opts.CachePath())

	if err := t.store.Save(current); err != nil {
		return report, fmt.Errorf("failed to save state: %w", err)
	}
	report.Fingerprint = state.Fingerprint(current)

	summary := report.Summary()
	t.logger.Info("cleaned stale descriptors",
		"previous", report.Previous,
		"current", report.Current,
		"stale", len(stale),
		"removed", summary.Removed,
		"missing", summary.NotFound,
		"failed", summary.Failed,
		"cache", report.Cache.Outcome,
	)
	return report, nil
}

// Plan returns the entries whose descriptors Run would delete. It reads the
// record without creating it and touches nothing on disk.
func (t *Task) Plan(ctx context.Context, current state.Set) ([]state.EntryID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	previous, err := t.store.Peek()
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	return reconcile.Sorted(reconcile.Stale(previous, current)), nil
}

// markSkipped fills in the deletions a cancelled sweep never started, and
// the cache removal that no longer follows.
func (t *Task) markSkipped(report *Report, cause error) {
	report.Cache = t.deleter.Skip(t.opts.CachePath(), cause)
	for i, d := range report.Deletions {
		if d.Outcome != artifact.NotAttempted {
			continue
		}
		id := report.Stale[i]
		path, err := DescriptorPath(t.opts.Root, id, t.opts.DescriptorName)
		if err != nil {
			path = string(id)
		}
		report.Deletions[i] = t.deleter.Skip(path, cause)
	}
}

func (t *Task) deleteDescriptor(_ context.Context, id state.EntryID) artifact.Result {
	path, err := DescriptorPath(t.opts.Root, id, t.opts.DescriptorName)
	if err != nil {
		return t.deleter.Fail(string(id), err)
	}
	return t.deleter.Delete(path)
}

func (t *Task) lock(ctx context.Context) (func(), error) {
	if !t.opts.Lock {
		return func() {}, nil
	}

	lockPath := t.store.Path() + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocked, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	t.logger.Debug("acquired state lock", "path", lockPath)

	return func() {
		if err := fl.Unlock(); err != nil {
			t.logger.Warn("failed to release state lock", "path", lockPath, "error", err)
		}
	}, nil
}
