// Package state persists the set of entries a generator run produced, so the
// next run can tell which generated descriptors have gone stale.
package state

import (
	"errors"
	"fmt"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// EntryID is a normalized, project-relative path naming one generated unit.
// Two ids are the same entry only if their strings are equal.
type EntryID string

// Set is a set of entries. Duplicates collapse.
type Set = mapset.Set[EntryID]

// ErrInvalidEntryID is returned for ids the line record cannot hold.
var ErrInvalidEntryID = errors.New("invalid entry id")

// NewSet returns a set holding ids.
func NewSet(ids ...EntryID) Set {
	return mapset.NewSet(ids...)
}

// NormalizeEntryID trims whitespace, converts separators to forward slashes
// and cleans the path, so "./app//lib/" and "app/lib" name the same entry.
// A blank input stays blank. Ids spanning several lines are rejected.
func NormalizeEntryID(s string) (EntryID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	id := EntryID(path.Clean(strings.ReplaceAll(s, `\`, "/")))
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate rejects ids containing line breaks, which would split into
// several entries once written to the record.
func (id EntryID) Validate() error {
	if strings.ContainsAny(string(id), "\r\n") {
		return fmt.Errorf("%w: %q contains a line break", ErrInvalidEntryID, id)
	}
	return nil
}

// ValidateEntries checks every id in entries.
func ValidateEntries(entries Set) error {
	if entries == nil {
		return nil
	}
	var errs []error
	entries.Each(func(id EntryID) bool {
		if err := id.Validate(); err != nil {
			errs = append(errs, err)
		}
		return false
	})
	return errors.Join(errs...)
}
