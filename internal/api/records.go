package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/store"
)

// RecordHandler serves the record source endpoints the dashboard reads from.
type RecordHandler struct {
	clients store.ClientStore
}

// NewRecordHandler creates a RecordHandler over the client store.
func NewRecordHandler(clients store.ClientStore) *RecordHandler {
	return &RecordHandler{clients: clients}
}

// ListClients handles GET /clients.
//
//	@Summary		List every client ordered by status
//	@Tags			records
//	@Produce		json
//	@Success		200	{array}	models.Client
//	@Router			/clients [get]
func (h *RecordHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.ListClients(r.Context())
	if err != nil {
		slog.Error("list clients failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// GetClient handles GET /client/{id}, where id is the client_id.
//
//	@Summary		Get one client by client_id
//	@Tags			records
//	@Produce		json
//	@Param			id	path		int	true	"client_id"
//	@Success		200	{object}	models.Client
//	@Failure		404	{object}	errResponse
//	@Router			/client/{id} [get]
func (h *RecordHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid client id"))
		return
	}
	c, err := h.clients.GetClient(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("Client not found"))
			return
		}
		slog.Error("get client failed", slog.Int64("client_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// FindClients handles GET /client?id=&name=&phone_number=.
//
//	@Summary		Look clients up by id, name or phone number
//	@Tags			records
//	@Produce		json
//	@Param			id				query		int		false	"Row id"
//	@Param			name			query		string	false	"Name (case-insensitive)"
//	@Param			phone_number	query		string	false	"Phone number"
//	@Success		200				{array}		models.Client
//	@Failure		404				{object}	errResponse
//	@Router			/client [get]
func (h *RecordHandler) FindClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.ClientQuery{
		Name:        q.Get("name"),
		PhoneNumber: q.Get("phone_number"),
	}
	if raw := q.Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
			return
		}
		query.ID = id
	}

	clients, err := h.clients.FindClients(r.Context(), query)
	if err != nil {
		slog.Error("find clients failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if len(clients) == 0 {
		writeJSON(w, http.StatusNotFound, errorBody("No matching client found in database"))
		return
	}
	writeJSON(w, http.StatusOK, clients)
}
