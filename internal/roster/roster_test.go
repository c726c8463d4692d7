package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/evolve/internal/caldate"
	"github.com/starford/evolve/internal/models"
)

func strPtr(s string) *string { return &s }

func sampleClients() []models.Client {
	return []models.Client{
		{ClientID: 1, Name: "Bob", PhoneNumber: "9876500001", Status: "Active", Gender: "M", EndDate: strPtr("15-03-2024"), ImageRef: "aa"},
		{ClientID: 2, Name: "alice", PhoneNumber: "9876500002", Status: "inactive", Gender: "f", EndDate: nil},
		{ClientID: 3, Name: "Ann", PhoneNumber: "9123400003", Status: "ACTIVE", Gender: "F", EndDate: strPtr("01-01-2024")},
	}
}

func names(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Item.Name
	}
	return out
}

func rowPtrs(items []Item) []*Row {
	rows := make([]*Row, len(items))
	for i, it := range items {
		rows[i] = &Row{Item: it, Visible: true}
	}
	return rows
}

func derefNames(rows []*Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Item.Name
	}
	return out
}

func TestNewItems(t *testing.T) {
	items := NewItems(sampleClients(), func(ref string) string { return "https://cdn/" + ref + ".enc" })
	require.Len(t, items, 3)

	assert.Equal(t, 0, items[0].Index)
	assert.Equal(t, StatusActive, items[0].Status)
	assert.Equal(t, "m", items[0].Gender)
	assert.Equal(t, caldate.Date{Year: 2024, Month: time.March, Day: 15}, items[0].EndDate)
	assert.Equal(t, "https://cdn/aa.enc", items[0].ImageURL)

	assert.Equal(t, StatusInactive, items[1].Status)
	assert.False(t, items[1].HasEndDate())
	assert.Empty(t, items[1].ImageURL)

	assert.Equal(t, StatusActive, items[2].Status)
	assert.Equal(t, "Active", items[2].StatusLabel())
}

func TestNewItems_NullStringDate(t *testing.T) {
	items := NewItems([]models.Client{{Name: "x", EndDate: strPtr("NULL")}}, nil)
	assert.False(t, items[0].HasEndDate())
	assert.Empty(t, items[0].RawDate)
}

func TestIsVisible_EmptySpecShowsEverything(t *testing.T) {
	for _, it := range NewItems(sampleClients(), nil) {
		assert.True(t, IsVisible(it, FilterSpec{}), it.Name)
	}
}

func TestIsVisible_Query(t *testing.T) {
	items := NewItems(sampleClients(), nil)

	spec := FilterSpec{Query: "AN"}.Normalize()
	assert.False(t, IsVisible(items[0], spec))
	assert.False(t, IsVisible(items[1], spec))
	assert.True(t, IsVisible(items[2], spec))

	spec = FilterSpec{Query: "98765"}.Normalize()
	assert.True(t, IsVisible(items[0], spec))
	assert.True(t, IsVisible(items[1], spec))
	assert.False(t, IsVisible(items[2], spec))
}

func TestIsVisible_StatusAndGender(t *testing.T) {
	items := NewItems(sampleClients(), nil)

	spec := FilterSpec{Status: "Active", Gender: "f"}.Normalize()
	assert.False(t, IsVisible(items[0], spec))
	assert.False(t, IsVisible(items[1], spec))
	assert.True(t, IsVisible(items[2], spec))
}

func TestIsVisible_DateRangeBoundsInclusive(t *testing.T) {
	start := caldate.Date{Year: 2024, Month: time.February, Day: 1}
	end := caldate.Date{Year: 2024, Month: time.February, Day: 29}
	spec := FilterSpec{Start: start, End: end}

	for _, d := range []caldate.Date{start, end, start.AddDays(10)} {
		assert.True(t, IsVisible(Item{EndDate: d}, spec), d.String())
	}
	for _, d := range []caldate.Date{start.AddDays(-1), end.AddDays(1)} {
		assert.False(t, IsVisible(Item{EndDate: d}, spec), d.String())
	}
	assert.False(t, IsVisible(Item{}, spec), "item without date")
}

func TestIsVisible_OpenEndedRange(t *testing.T) {
	pivot := caldate.Date{Year: 2024, Month: time.June, Day: 1}

	onlyStart := FilterSpec{Start: pivot}
	assert.True(t, IsVisible(Item{EndDate: pivot.AddDays(400)}, onlyStart))
	assert.False(t, IsVisible(Item{EndDate: pivot.AddDays(-1)}, onlyStart))

	onlyEnd := FilterSpec{End: pivot}
	assert.True(t, IsVisible(Item{EndDate: pivot.AddDays(-400)}, onlyEnd))
	assert.False(t, IsVisible(Item{EndDate: pivot.AddDays(1)}, onlyEnd))
	assert.False(t, IsVisible(Item{}, onlyEnd))
}

func TestSorter_NameCaseInsensitive(t *testing.T) {
	rows := rowPtrs(NewItems(sampleClients(), nil))
	s := NewSorter()

	sorted, dir := s.Sort(rows, SortByName)
	assert.Equal(t, Ascending, dir)
	assert.Equal(t, []string{"alice", "Ann", "Bob"}, derefNames(sorted))

	sorted, dir = s.Sort(rows, SortByName)
	assert.Equal(t, Descending, dir)
	assert.Equal(t, []string{"Bob", "Ann", "alice"}, derefNames(sorted))

	assert.Equal(t, []string{"Bob", "alice", "Ann"}, derefNames(rows), "input must not be reordered")
}

func TestSorter_NameNumericAware(t *testing.T) {
	items := []Item{{Index: 0, Name: "item10"}, {Index: 1, Name: "item2"}, {Index: 2, Name: "Item1"}}
	sorted, _ := NewSorter().Sort(rowPtrs(items), SortByName)
	assert.Equal(t, []string{"Item1", "item2", "item10"}, derefNames(sorted))
}

func TestSorter_EmptyNames(t *testing.T) {
	items := []Item{{Index: 0, Name: ""}, {Index: 1, Name: "b"}, {Index: 2, Name: "  "}, {Index: 3, Name: "a"}}
	s := NewSorter()

	asc, _ := s.Sort(rowPtrs(items), SortByName)
	assert.Equal(t, []int{3, 1, 0, 2}, indexes(asc))

	desc, _ := s.Sort(rowPtrs(items), SortByName)
	assert.Equal(t, []int{0, 2, 1, 3}, indexes(desc), "empties first, ties still by index")
}

func TestSorter_TieBreakByIndex(t *testing.T) {
	items := []Item{{Index: 0, Name: "Sam"}, {Index: 1, Name: "sam"}, {Index: 2, Name: "SAM"}}
	s := NewSorter()

	asc, _ := s.Sort(rowPtrs(items), SortByName)
	assert.Equal(t, []int{0, 1, 2}, indexes(asc))
	desc, _ := s.Sort(rowPtrs(items), SortByName)
	assert.Equal(t, []int{0, 1, 2}, indexes(desc))
}

func TestSorter_DateNullPlacement(t *testing.T) {
	rows := rowPtrs(NewItems(sampleClients(), nil))
	s := NewSorter()

	asc, _ := s.Sort(rows, SortByDate)
	assert.Equal(t, []string{"Ann", "Bob", "alice"}, derefNames(asc))

	desc, _ := s.Sort(rows, SortByDate)
	assert.Equal(t, []string{"alice", "Bob", "Ann"}, derefNames(desc))
}

func TestSorter_DateNullsKeepFetchedOrder(t *testing.T) {
	d := caldate.Date{Year: 2024, Month: time.May, Day: 1}
	items := []Item{{Index: 0}, {Index: 1, EndDate: d}, {Index: 2}, {Index: 3, EndDate: d}}
	s := NewSorter()

	asc, _ := s.Sort(rowPtrs(items), SortByDate)
	assert.Equal(t, []int{1, 3, 0, 2}, indexes(asc))
	desc, _ := s.Sort(rowPtrs(items), SortByDate)
	assert.Equal(t, []int{0, 2, 1, 3}, indexes(desc))
}

func TestSorter_Status(t *testing.T) {
	rows := rowPtrs(NewItems(sampleClients(), nil))
	s := NewSorter()

	asc, _ := s.Sort(rows, SortByStatus)
	assert.Equal(t, []string{"Bob", "Ann", "alice"}, derefNames(asc))
	desc, _ := s.Sort(rows, SortByStatus)
	assert.Equal(t, []string{"alice", "Bob", "Ann"}, derefNames(desc))
}

func TestSorter_DirectionsAreIndependent(t *testing.T) {
	s := NewSorter()
	rows := rowPtrs(NewItems(sampleClients(), nil))

	s.Sort(rows, SortByName)
	assert.Equal(t, Descending, s.Direction(SortByName))
	assert.Equal(t, Ascending, s.Direction(SortByDate))
	assert.Equal(t, Ascending, s.Direction(SortByStatus))
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey(" Date ")
	require.NoError(t, err)
	assert.Equal(t, SortByDate, k)

	_, err = ParseSortKey("phone")
	assert.Error(t, err)
}

func TestRenumber(t *testing.T) {
	rows := []*Row{
		{Visible: true, Serial: 9},
		{Visible: false, Serial: 7},
		{Visible: true, Serial: 0},
		{Visible: false, Serial: 4},
		{Visible: true, Serial: 1},
	}
	Renumber(rows, isShown)

	assert.Equal(t, 1, rows[0].Serial)
	assert.Equal(t, 7, rows[1].Serial, "hidden rows keep stale serials")
	assert.Equal(t, 2, rows[2].Serial)
	assert.Equal(t, 4, rows[3].Serial)
	assert.Equal(t, 3, rows[4].Serial)
}

func TestView_FilterThenSortRenumbers(t *testing.T) {
	v := NewView(NewItems(sampleClients(), nil))

	snap := v.Filter(FilterSpec{Status: "active"})
	assert.Equal(t, 2, snap.Visible)
	assert.Equal(t, 3, snap.Total)
	assertSerials(t, snap)

	snap, dir := v.Sort(SortByName)
	assert.Equal(t, Ascending, dir)
	assert.Equal(t, []string{"Ann", "Bob"}, names(snap.VisibleRows()))
	assertSerials(t, snap)

	// A filter change must not reset the name direction.
	v.Filter(FilterSpec{})
	snap, dir = v.Sort(SortByName)
	assert.Equal(t, Descending, dir)
	assert.Equal(t, []string{"Bob", "Ann", "alice"}, names(snap.VisibleRows()))
	assertSerials(t, snap)
}

func TestView_ReplaceKeepsFilterAndDirections(t *testing.T) {
	v := NewView(NewItems(sampleClients(), nil))
	v.Filter(FilterSpec{Gender: "F"})
	v.Sort(SortByDate)

	fresh := append(sampleClients(), models.Client{Name: "Fay", Gender: "f", Status: "active"})
	snap := v.Replace(NewItems(fresh, nil))

	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, []string{"alice", "Ann", "Fay"}, names(snap.VisibleRows()))
	assertSerials(t, snap)
	assert.Equal(t, Descending, v.Direction(SortByDate))
}

func assertSerials(t *testing.T, snap Snapshot) {
	t.Helper()
	for i, r := range snap.VisibleRows() {
		assert.Equal(t, i+1, r.Serial, "serial of %s", r.Item.Name)
	}
}

func indexes(rows []*Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.Item.Index
	}
	return out
}
