package measurement

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoMeasurementsFound reports that zero measurement directories match a
// filter. Callers treat it as fatal.
var ErrNoMeasurementsFound = errors.New("no measurements found")

// Filter selects measurement directories under a results root by name.
type Filter struct {
	// Prefix is the required directory name prefix. Empty matches all.
	Prefix string
	// Suffix is an optional directory name suffix.
	Suffix string
	// RequiredFile, when set, restricts matches to directories containing
	// that child file.
	RequiredFile string
}

func (f Filter) matches(root, name string) bool {
	if !strings.HasPrefix(name, f.Prefix) {
		return false
	}
	if f.Suffix != "" && !strings.HasSuffix(name, f.Suffix) {
		return false
	}
	if f.RequiredFile != "" {
		if _, err := os.Stat(filepath.Join(root, name, f.RequiredFile)); err != nil {
			return false
		}
	}
	return true
}

// Set is one measurement directory.
type Set struct {
	Name string
	Path string
}

// List returns the measurement sets matching the filter, sorted by name.
func List(root string, filter Filter) ([]Set, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read results root: %w", err)
	}
	var sets []Set
	for _, entry := range entries {
		if !entry.IsDir() || !filter.matches(root, entry.Name()) {
			continue
		}
		sets = append(sets, Set{
			Name: entry.Name(),
			Path: filepath.Join(root, entry.Name()),
		})
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets, nil
}

// Resolve picks one set from candidates: an exact name match wins; otherwise
// the lexicographically last candidate (names embed timestamps, so last is
// newest). Zero candidates fail with ErrNoMeasurementsFound.
func Resolve(sets []Set, name string) (Set, error) {
	if len(sets) == 0 {
		return Set{}, ErrNoMeasurementsFound
	}
	if name != "" {
		for _, set := range sets {
			if set.Name == name {
				return set, nil
			}
		}
		return Set{}, fmt.Errorf("%w: no measurement named %q", ErrNoMeasurementsFound, name)
	}
	return sets[len(sets)-1], nil
}

// Select lists and resolves in one step. With several candidates the
// listing is printed to diag before one is picked.
func Select(root string, filter Filter, name string, diag io.Writer) (Set, error) {
	sets, err := List(root, filter)
	if err != nil {
		return Set{}, err
	}
	if len(sets) == 0 {
		return Set{}, fmt.Errorf("%w: nothing under %s matches prefix %q", ErrNoMeasurementsFound, root, filter.Prefix)
	}
	if len(sets) > 1 && diag != nil {
		fmt.Fprintf(diag, "candidate measurements under %s:\n", root)
		for _, set := range sets {
			fmt.Fprintf(diag, "  %s\n", set.Name)
		}
	}
	return Resolve(sets, name)
}
