// Package artifact removes generated files and directories on a best-effort
// basis. A removal never fails the caller; its outcome is reported instead.
package artifact

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"syscall"

	"github.com/Beerjiw/okbuck/internal/log"
)

// Outcome is what happened to one removal target.
type Outcome int

const (
	// NotAttempted means the removal never ran, for example because the run
	// was cancelled first. The target may still exist.
	NotAttempted Outcome = iota
	// Removed means the target existed and is gone.
	Removed
	// NotFound means there was nothing to remove.
	NotFound
	// Failed means the target may still exist.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotAttempted:
		return "not-attempted"
	case Removed:
		return "removed"
	case NotFound:
		return "not-found"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText renders the outcome by name in JSON reports.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result records the removal of one path.
type Result struct {
	Path    string  `json:"path"`
	Outcome Outcome `json:"outcome"`
	Err     error   `json:"-"`
}

// OK reports whether the path is now absent.
func (r Result) OK() bool {
	return r.Outcome == Removed || r.Outcome == NotFound
}

// Deleter removes files and directory trees.
type Deleter struct {
	logger *slog.Logger
	remove func(string) error
	lstat  func(string) (fs.FileInfo, error)
}

// Option configures a Deleter.
type Option func(*Deleter)

// WithLogger sets the logger failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deleter) {
		d.logger = l
	}
}

// WithRemoveFunc replaces os.RemoveAll.
// Used primarily for testing.
func WithRemoveFunc(fn func(string) error) Option {
	return func(d *Deleter) {
		d.remove = fn
	}
}

// NewDeleter creates a Deleter with the given options.
func NewDeleter(opts ...Option) *Deleter {
	d := &Deleter{
		remove: os.RemoveAll,
		lstat:  os.Lstat,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.Component("artifact")
	}
	return d
}

// Delete makes sure nothing exists at path. Directories are removed
// recursively and symlinks are removed without following them. A path whose
// parent is not a directory cannot exist and counts as not found.
func (d *Deleter) Delete(path string) Result {
	if _, err := d.lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			d.logger.Debug("nothing to remove", "path", path)
			return Result{Path: path, Outcome: NotFound}
		}
		return d.fail(path, err)
	}

	if err := d.remove(path); err != nil {
		return d.fail(path, err)
	}
	d.logger.Debug("removed", "path", path)
	return Result{Path: path, Outcome: Removed}
}

// Fail reports path as not removed without touching the filesystem.
func (d *Deleter) Fail(path string, err error) Result {
	return d.fail(path, err)
}

// Skip reports path as never attempted because of err.
func (d *Deleter) Skip(path string, err error) Result {
	d.logger.Debug("removal not attempted", "path", path, "error", err)
	return Result{Path: path, Outcome: NotAttempted, Err: err}
}

func (d *Deleter) fail(path string, err error) Result {
	d.logger.Warn("failed to remove generated artifact", "path", path, "error", err)
	return Result{Path: path, Outcome: Failed, Err: err}
}

// Summary counts results per outcome.
type Summary struct {
	Removed      int `json:"removed"`
	NotFound     int `json:"not_found"`
	Failed       int `json:"failed"`
	NotAttempted int `json:"not_attempted,omitempty"`
}

// Summarize counts results per outcome.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Outcome {
		case Removed:
			s.Removed++
		case NotFound:
			s.NotFound++
		case Failed:
			s.Failed++
		case NotAttempted:
			s.NotAttempted++
		}
	}
	return s
}
