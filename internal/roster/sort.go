package roster

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey names a sortable column.
type SortKey string

// Sortable columns.
const (
	SortByName   SortKey = "name"
	SortByDate   SortKey = "date"
	SortByStatus SortKey = "status"
)

// ParseSortKey validates a column name.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortByName, SortByDate, SortByStatus:
		return k, nil
	}
	return "", fmt.Errorf("roster: unknown sort key %q", s)
}

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Sorter orders rows by a column and remembers, per column, which direction
// the next call uses. Every column starts ascending and flips after each call.
// A Sorter is not safe for concurrent use; View serializes access.
type Sorter struct {
	desc map[SortKey]bool
	coll *collate.Collator
}

// NewSorter returns a Sorter with every column set to ascending.
func NewSorter() *Sorter {
	return &Sorter{
		desc: make(map[SortKey]bool),
		coll: collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics, collate.Numeric),
	}
}

// Direction reports the direction the next Sort on key will use.
func (s *Sorter) Direction(key SortKey) Direction {
	if s.desc[key] {
		return Descending
	}
	return Ascending
}

// Sort returns rows ordered by key in the key's current direction and then
// flips that direction. The input slice and the items are left untouched.
func (s *Sorter) Sort(rows []*Row, key SortKey) ([]*Row, Direction) {
	dir := s.Direction(key)
	out := slices.Clone(rows)
	cmp := s.comparator(key, dir == Ascending)
	slices.SortFunc(out, func(a, b *Row) int {
		return cmp(a.Item, b.Item)
	})
	s.desc[key] = !s.desc[key]
	return out, dir
}

// comparator builds a total order for key: the column comparison first, then
// the original index ascending whenever the column compares equal.
func (s *Sorter) comparator(key SortKey, asc bool) func(a, b Item) int {
	var primary func(a, b Item) int
	switch key {
	case SortByName:
		primary = func(a, b Item) int { return s.compareNames(a.Name, b.Name, asc) }
	case SortByDate:
		primary = func(a, b Item) int { return compareDates(a, b, asc) }
	default:
		primary = func(a, b Item) int {
			return directed(strings.Compare(a.StatusLabel(), b.StatusLabel()), asc)
		}
	}
	return func(a, b Item) int {
		if c := primary(a, b); c != 0 {
			return c
		}
		return a.Index - b.Index
	}
}

// compareNames puts empty names last ascending and first descending.
func (s *Sorter) compareNames(a, b string, asc bool) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return directed(1, asc)
	case b == "":
		return directed(-1, asc)
	}
	return directed(s.coll.CompareString(a, b), asc)
}

// compareDates treats a missing date as larger than any date, so nulls end
// up last ascending and first descending.
func compareDates(a, b Item, asc bool) int {
	switch {
	case !a.HasEndDate() && !b.HasEndDate():
		return 0
	case !a.HasEndDate():
		return directed(1, asc)
	case !b.HasEndDate():
		return directed(-1, asc)
	}
	return directed(a.EndDate.Compare(b.EndDate), asc)
}

func directed(c int, asc bool) int {
	if asc {
		return c
	}
	return -c
}
