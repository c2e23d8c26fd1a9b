package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/pkg/httputil"
)

type subscriberRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	ident := IdentityFrom(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, total, err := s.audiences.ListSubscribers(r.Context(), ident, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.Subscriber{}
	}
	httputil.OK(w, listResponse{Items: items, Total: total})
}

func (s *Server) handleCreateSubscriber(w http.ResponseWriter, r *http.Request) {
	var req subscriberRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	sub, err := s.audiences.CreateSubscriber(r.Context(), IdentityFrom(r.Context()), req.Email, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, sub)
}

type subscriberUpdateRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

func (s *Server) handleUpdateSubscriber(w http.ResponseWriter, r *http.Request) {
	var req subscriberUpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	sub, err := s.audiences.UpdateSubscriber(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"), req.Name, req.Active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, sub)
}

func (s *Server) handleDeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := s.audiences.DeleteSubscriber(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

type groupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	items, err := s.audiences.ListGroups(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.BroadcastGroup{}
	}
	httputil.OK(w, listResponse{Items: items, Total: len(items)})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	g, err := s.audiences.CreateGroup(r.Context(), IdentityFrom(r.Context()), req.Name, req.Description, req.IsDefault)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, g)
}

type groupUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsDefault   *bool   `json:"is_default"`
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupUpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	g, err := s.audiences.UpdateGroup(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"), req.Name, req.Description, req.IsDefault)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.audiences.DeleteGroup(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	err := s.audiences.AddMember(r.Context(), IdentityFrom(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "subscriberID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	err := s.audiences.RemoveMember(r.Context(), IdentityFrom(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "subscriberID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}
