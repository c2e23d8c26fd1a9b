package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/pkg/httputil"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

type listResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

func (s *Server) handleListBroadcasts(w http.ResponseWriter, r *http.Request) {
	ident := IdentityFrom(r.Context())

	f := broadcast.ListFilter{
		Status: r.URL.Query().Get("status"),
	}
	f.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	f.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	items, total, err := s.broadcasts.List(r.Context(), ident, f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.Broadcast{}
	}
	httputil.OK(w, listResponse{Items: items, Total: total})
}

func (s *Server) handleCreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var input broadcast.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}

	b, err := s.broadcasts.Create(r.Context(), IdentityFrom(r.Context()), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, b)
}

func (s *Server) handleGetBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := s.broadcasts.Get(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, b)
}

func (s *Server) handleUpdateBroadcast(w http.ResponseWriter, r *http.Request) {
	var fields broadcast.UpdateFields
	if !httputil.Decode(w, r, &fields) {
		return
	}

	b, err := s.broadcasts.Update(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"), fields)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, b)
}

func (s *Server) handleDeleteBroadcast(w http.ResponseWriter, r *http.Request) {
	if err := s.broadcasts.Delete(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

type scheduleRequest struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (s *Server) handleScheduleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ScheduledFor.IsZero() {
		httputil.BadRequest(w, "scheduled_for is required")
		return
	}

	b, err := s.broadcasts.Schedule(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"), req.ScheduledFor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, b)
}

func (s *Server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	b, err := s.broadcasts.CancelSchedule(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, b)
}

// handleSendBroadcast serves both send and retry: a failed broadcast is
// simply send-eligible again.
func (s *Server) handleSendBroadcast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ident := IdentityFrom(r.Context())

	if err := s.broadcasts.SendNow(r.Context(), ident, id); err != nil {
		writeServiceError(w, err)
		return
	}

	b, err := s.broadcasts.Get(r.Context(), ident, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, b)
}
