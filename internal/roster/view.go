package roster

import "sync"

// View is the table state owned by one dashboard session: the rows in
// rendered order, the active filter and the per-column sort directions.
// Every mutation ends with a renumber, so serials always match what is shown.
type View struct {
	mu     sync.Mutex
	rows   []*Row
	filter FilterSpec
	sorter *Sorter
}

// NewView returns a View showing items in their fetched order.
func NewView(items []Item) *View {
	v := &View{sorter: NewSorter()}
	v.load(items)
	return v
}

// Snapshot is an immutable copy of a View's rows.
type Snapshot struct {
	Rows    []Row
	Visible int
	Total   int
	Filter  FilterSpec
}

// Replace swaps in a freshly fetched list. The filter and sort directions
// survive; rows return to fetched order with the filter re-applied.
func (v *View) Replace(items []Item) Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.load(items)
	v.applyFilter()
	return v.snapshot()
}

// Filter recomputes visibility of every row against spec and renumbers.
func (v *View) Filter(spec FilterSpec) Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = spec.Normalize()
	v.applyFilter()
	return v.snapshot()
}

// Sort reorders the rows by key using that key's current direction, flips
// the direction for next time and renumbers.
func (v *View) Sort(key SortKey) (Snapshot, Direction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rows, dir := v.sorter.Sort(v.rows, key)
	v.rows = rows
	Renumber(v.rows, isShown)
	return v.snapshot(), dir
}

// Direction reports the direction the next Sort on key will use.
func (v *View) Direction(key SortKey) Direction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sorter.Direction(key)
}

// Snapshot returns the current state without changing it.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot()
}

func (v *View) load(items []Item) {
	v.rows = make([]*Row, len(items))
	for i, it := range items {
		v.rows[i] = &Row{Item: it, Visible: true, Serial: i + 1}
	}
}

func (v *View) applyFilter() {
	for _, r := range v.rows {
		r.Visible = IsVisible(r.Item, v.filter)
	}
	Renumber(v.rows, isShown)
}

func (v *View) snapshot() Snapshot {
	s := Snapshot{
		Rows:   make([]Row, len(v.rows)),
		Total:  len(v.rows),
		Filter: v.filter,
	}
	for i, r := range v.rows {
		s.Rows[i] = *r
		if r.Visible {
			s.Visible++
		}
	}
	return s
}

// VisibleRows returns only the rows currently shown, in rendered order.
func (s Snapshot) VisibleRows() []Row {
	out := make([]Row, 0, s.Visible)
	for _, r := range s.Rows {
		if r.Visible {
			out = append(out, r)
		}
	}
	return out
}
