package roster

// Row is an item as currently rendered: its visibility and display number.
type Row struct {
	Item    Item
	Visible bool
	Serial  int
}

// Renumber assigns 1..k to the k rows accepted by visible, in slice order.
// Rejected rows keep whatever serial they had.
func Renumber(rows []*Row, visible func(*Row) bool) {
	n := 0
	for _, r := range rows {
		if !visible(r) {
			continue
		}
		n++
		r.Serial = n
	}
}

func isShown(r *Row) bool { return r.Visible }
