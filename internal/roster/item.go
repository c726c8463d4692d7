// Package roster turns fetched client records into a table that can be
// filtered, sorted and renumbered.
package roster

import (
	"strings"

	"github.com/starford/evolve/internal/caldate"
	"github.com/starford/evolve/internal/models"
)

// Normalized status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Item is a client record plus the fields derived for filtering and sorting.
// Index is the record's position in the fetched list and never changes.
type Item struct {
	Index    int
	Name     string
	Phone    string
	Status   string
	Gender   string
	EndDate  caldate.Date
	RawDate  string
	ClientID int64
	ImageRef string
	ImageURL string
}

// StatusLabel is the human-readable status shown in the table.
func (it Item) StatusLabel() string {
	if it.Status == StatusActive {
		return "Active"
	}
	return "Inactive"
}

// HasEndDate reports whether the record carried a parseable end date.
func (it Item) HasEndDate() bool {
	return !it.EndDate.IsZero()
}

// NewItems projects a freshly fetched list into items. imageURL maps an image
// reference to the URL of its encrypted blob; it may be nil.
func NewItems(clients []models.Client, imageURL func(ref string) string) []Item {
	items := make([]Item, len(clients))
	for i, c := range clients {
		raw := ""
		if c.EndDate != nil {
			raw = strings.TrimSpace(*c.EndDate)
		}
		date, _ := caldate.Parse(raw)
		if strings.EqualFold(raw, "null") {
			raw = ""
		}

		status := StatusInactive
		if strings.EqualFold(strings.TrimSpace(c.Status), StatusActive) {
			status = StatusActive
		}

		it := Item{
			Index:    i,
			Name:     c.Name,
			Phone:    c.PhoneNumber,
			Status:   status,
			Gender:   strings.ToLower(strings.TrimSpace(c.Gender)),
			EndDate:  date,
			RawDate:  raw,
			ClientID: c.ClientID,
			ImageRef: c.ImageRef,
		}
		if imageURL != nil && c.ImageRef != "" {
			it.ImageURL = imageURL(c.ImageRef)
		}
		items[i] = it
	}
	return items
}
