package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/authgate"
	"github.com/starford/evolve/internal/caldate"
	"github.com/starford/evolve/internal/dashboard"
	"github.com/starford/evolve/internal/roster"
)

// Handler holds the dashboard route handlers.
type Handler struct {
	dash         *dashboard.Service
	sessions     *authgate.Sessions
	passwordHash string
	secureCookie bool
}

// NewHandler creates a new Handler. passwordHash is the hex SHA-256 digest
// of the admin password.
func NewHandler(dash *dashboard.Service, sessions *authgate.Sessions, passwordHash string, secureCookie bool) *Handler {
	return &Handler{dash: dash, sessions: sessions, passwordHash: passwordHash, secureCookie: secureCookie}
}

// Login handles POST /api/login.
//
//	@Summary		Log in with the admin password
//	@Tags			auth
//	@Accept			json
//	@Param			body	body	LoginRequest	true	"Password"
//	@Success		204		"Session cookie set"
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Router			/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("password is required"))
		return
	}
	if !authgate.Check(req.Password, h.passwordHash) {
		slog.Warn("login rejected", slog.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid password"))
		return
	}

	tok := h.sessions.Issue()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /api/logout.
//
//	@Summary		Drop the current session
//	@Tags			auth
//	@Success		204	"Session cleared"
//	@Router			/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if tok := sessionToken(r); tok != "" {
		h.sessions.Revoke(tok)
		h.dash.DropSession(tok)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/session.
//
//	@Summary		Report whether the caller is logged in
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Router			/session [get]
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{LoggedIn: h.sessions.Valid(sessionToken(r))})
}

// filterFromQuery reads the search inputs. Dates use the date picker's
// dd-mm-yyyy form; an unparseable bound means no bound.
func filterFromQuery(r *http.Request) roster.FilterSpec {
	q := r.URL.Query()
	spec := roster.FilterSpec{
		Query:  q.Get("q"),
		Status: q.Get("status"),
		Gender: q.Get("gender"),
	}
	spec.Start, _ = caldate.ParseDMY(q.Get("start"))
	spec.End, _ = caldate.ParseDMY(q.Get("end"))
	return spec
}

// ListClients handles GET /api/clients.
//
//	@Summary		Filter the session's table and return the visible rows
//	@Tags			clients
//	@Produce		json
//	@Param			q		query		string	false	"Name or phone substring"
//	@Param			status	query		string	false	"Status"	Enums(active, inactive)
//	@Param			gender	query		string	false	"Gender"
//	@Param			start	query		string	false	"Earliest end date (dd-mm-yyyy)"
//	@Param			end		query		string	false	"Latest end date (dd-mm-yyyy)"
//	@Success		200		{object}	TableResponse
//	@Failure		401		{object}	errResponse
//	@Router			/clients [get]
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	snap := h.dash.Filter(sessionFrom(r.Context()), filterFromQuery(r))
	writeJSON(w, http.StatusOK, toTable(snap, h.dash))
}

// SortClients handles POST /api/clients/sort.
//
//	@Summary		Sort the session's table by a column, toggling its direction
//	@Tags			clients
//	@Produce		json
//	@Param			key	query		string	true	"Column"	Enums(name, date, status)
//	@Success		200	{object}	TableResponse
//	@Failure		400	{object}	errResponse
//	@Router			/clients/sort [post]
func (h *Handler) SortClients(w http.ResponseWriter, r *http.Request) {
	key, err := roster.ParseSortKey(r.URL.Query().Get("key"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("key must be one of name, date, status"))
		return
	}
	session := sessionFrom(r.Context())
	snap, dir := h.dash.Sort(session, key)
	resp := toTable(snap, h.dash)
	resp.Sort = &SortState{Key: key, Direction: dir, Next: h.dash.Direction(session, key)}
	writeJSON(w, http.StatusOK, resp)
}

// ReloadClients handles POST /api/clients/reload.
//
//	@Summary		Refetch the record list and restart avatar decryption
//	@Tags			clients
//	@Produce		json
//	@Success		200	{object}	TableResponse
//	@Failure		502	{object}	errResponse
//	@Router			/clients/reload [post]
func (h *Handler) ReloadClients(w http.ResponseWriter, r *http.Request) {
	if _, err := h.dash.Reload(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody("record source unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, toTable(h.dash.Snapshot(sessionFrom(r.Context())), h.dash))
}

// Avatar handles GET /api/avatars/{index}. Pending, failed and missing
// avatars are served as the transparent placeholder.
func (h *Handler) Avatar(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid index"))
		return
	}
	obj, state, err := h.dash.AvatarImage(index)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("avatar lookup failed", slog.Int("index", index), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("X-Avatar-State", string(state))
	writeObject(w, obj.MIME, obj.Data)
}

// Object handles GET /objects/{id}.
func (h *Handler) Object(w http.ResponseWriter, r *http.Request) {
	obj, ok := h.dash.Object(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeObject(w, obj.MIME, obj.Data)
}

func writeObject(w http.ResponseWriter, mime string, data []byte) {
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
