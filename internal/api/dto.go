package api

import (
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/evolve/internal/dashboard"
	"github.com/starford/evolve/internal/roster"
)

// LoginRequest is the request body for POST /api/login.
type LoginRequest struct {
	Password string `json:"password" example:"admin123" validate:"required"`
}

// Validate checks the login payload.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(1, 1024)),
	)
}

// SessionResponse reports whether the caller holds a valid session.
type SessionResponse struct {
	LoggedIn bool `json:"logged_in"`
}

// RowDTO is one rendered table row.
type RowDTO struct {
	Serial      int    `json:"serial" example:"1"`
	Index       int    `json:"index" example:"0"`
	ClientID    int64  `json:"client_id" example:"10"`
	Name        string `json:"name" example:"Amit"`
	Phone       string `json:"phone_number" example:"9999999999"`
	Status      string `json:"status" example:"Active"`
	Gender      string `json:"gender" example:"m"`
	EndDate     string `json:"end_date" example:"15-03-2024"`
	Avatar      string `json:"avatar" example:"/api/avatars/0"`
	AvatarState string `json:"avatar_state" example:"ready"`
}

// SortState describes the sort that produced a table response.
type SortState struct {
	Key       roster.SortKey   `json:"key" example:"name"`
	Direction roster.Direction `json:"direction" example:"asc"`
	Next      roster.Direction `json:"next" example:"desc"`
}

// TableResponse is the visible part of a session's table in rendered order.
type TableResponse struct {
	Rows     []RowDTO           `json:"rows" validate:"required"`
	Visible  int                `json:"visible" example:"2"`
	Total    int                `json:"total" example:"3"`
	Sort     *SortState         `json:"sort,omitempty"`
	Progress dashboard.Progress `json:"avatars"`
}

func toTable(snap roster.Snapshot, dash *dashboard.Service) TableResponse {
	visible := snap.VisibleRows()
	rows := make([]RowDTO, len(visible))
	for i, r := range visible {
		state := dashboard.AvatarMissing
		if a, err := dash.Avatar(r.Item.Index); err == nil {
			state = a.State
		}
		rows[i] = RowDTO{
			Serial:      r.Serial,
			Index:       r.Item.Index,
			ClientID:    r.Item.ClientID,
			Name:        r.Item.Name,
			Phone:       r.Item.Phone,
			Status:      r.Item.StatusLabel(),
			Gender:      r.Item.Gender,
			EndDate:     r.Item.EndDate.String(),
			Avatar:      "/api/avatars/" + strconv.Itoa(r.Item.Index),
			AvatarState: string(state),
		}
	}
	return TableResponse{
		Rows:     rows,
		Visible:  snap.Visible,
		Total:    snap.Total,
		Progress: dash.Progress(),
	}
}
