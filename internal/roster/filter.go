package roster

import (
	"strings"

	"github.com/starford/evolve/internal/caldate"
)

// FilterSpec is the combination of search inputs. The zero value matches
// every item.
type FilterSpec struct {
	Query  string
	Status string
	Gender string
	Start  caldate.Date
	End    caldate.Date
}

// Normalize trims the text fields and lowercases them so they compare against
// the normalized item fields.
func (f FilterSpec) Normalize() FilterSpec {
	f.Query = strings.ToLower(strings.TrimSpace(f.Query))
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	f.Gender = strings.ToLower(strings.TrimSpace(f.Gender))
	return f
}

// IsEmpty reports whether f places no constraint at all.
func (f FilterSpec) IsEmpty() bool {
	return f == FilterSpec{}
}

// HasDateRange reports whether either date bound is set.
func (f FilterSpec) HasDateRange() bool {
	return !f.Start.IsZero() || !f.End.IsZero()
}

// IsVisible reports whether item passes every constraint in spec. An item
// without an end date never satisfies a date range.
func IsVisible(item Item, spec FilterSpec) bool {
	if q := strings.ToLower(spec.Query); q != "" {
		if !strings.Contains(strings.ToLower(item.Name), q) &&
			!strings.Contains(strings.ToLower(item.Phone), q) {
			return false
		}
	}
	if spec.Status != "" && item.Status != spec.Status {
		return false
	}
	if spec.Gender != "" && item.Gender != spec.Gender {
		return false
	}
	if !spec.HasDateRange() {
		return true
	}
	if !item.HasEndDate() {
		return false
	}
	if !spec.Start.IsZero() && item.EndDate.Before(spec.Start) {
		return false
	}
	if !spec.End.IsZero() && item.EndDate.After(spec.End) {
		return false
	}
	return true
}
