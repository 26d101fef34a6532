package state

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Beerjiw/okbuck/internal/log"
	"github.com/Beerjiw/okbuck/pkg/reconcile"
	"github.com/cespare/xxhash/v2"
	"github.com/moby/sys/atomicwriter"
)

const (
	// DefaultFile is the record location relative to the project root.
	DefaultFile = ".okbuck/state/STATE"

	recordPerm = 0o644
	dirPerm    = 0o755
)

// Store loads and saves the previous run's entries.
type Store interface {
	// Load returns the recorded entries, creating an empty record if none
	// exists yet.
	Load() (Set, error)
	// Peek returns the recorded entries without creating anything.
	Peek() (Set, error)
	// Save replaces the record with entries.
	Save(entries Set) error
	// Path returns the record location.
	Path() string
}

// LineStore keeps the record as plain text, one entry per line.
type LineStore struct {
	path string
}

// NewLineStore returns a store backed by the file at path.
func NewLineStore(path string) *LineStore {
	return &LineStore{path: path}
}

// Path returns the record location.
func (s *LineStore) Path() string {
	return s.path
}

// Load reads the record. A missing record is created empty, along with any
// missing parent directories, and yields the empty set.
func (s *LineStore) Load() (Set, error) {
	entries, err := s.read()
	if !errors.Is(err, fs.ErrNotExist) {
		return entries, err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE, recordPerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create state file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to create state file: %w", err)
	}
	return NewSet(), nil
}

// Peek reads the record, treating a missing one as empty.
func (s *LineStore) Peek() (Set, error) {
	entries, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		return NewSet(), nil
	}
	return entries, err
}

func (s *LineStore) read() (Set, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	traceRecord("read state", s.path, entries)
	return entries, nil
}

// Save writes entries sorted, one per line, replacing the record atomically.
// Ids containing line breaks are rejected before anything is written.
func (s *LineStore) Save(entries Set) error {
	if err := ValidateEntries(entries); err != nil {
		return fmt.Errorf("refusing to write state file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := atomicwriter.WriteFile(s.path, Serialize(entries), recordPerm); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	traceRecord("wrote state", s.path, entries)
	return nil
}

func traceRecord(msg, path string, entries Set) {
	if log.Verbosity() < log.VerbosityTrace {
		return
	}
	log.Trace(msg, "path", path, "count", entries.Cardinality(), "entries", Sorted(entries))
}

// Parse reads one entry per line. Lines are trimmed and blank lines dropped.
func Parse(r io.Reader) (Set, error) {
	entries := NewSet()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			entries.Add(EntryID(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Serialize renders entries in record format: sorted ascending, each line
// newline-terminated. The empty set renders as zero bytes.
func Serialize(entries Set) []byte {
	var buf bytes.Buffer
	for _, id := range Sorted(entries) {
		buf.WriteString(string(id))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Sorted returns entries in ascending order.
func Sorted(entries Set) []EntryID {
	return reconcile.Sorted(entries)
}

// Fingerprint returns the xxHash64 of the serialized record as hex. Equal
// sets always share a fingerprint.
func Fingerprint(entries Set) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64(Serialize(entries)))
	return hex.EncodeToString(buf[:])
}
