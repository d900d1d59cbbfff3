package app

import (
	"net/http"
	"strings"
)

// handleAdmin routes /api/admin/users and its per-user actions.
func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, actor Actor, parts []string) {
	if len(parts) < 3 || parts[2] != "users" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			s.handleAdminUsers(w, r, actor)
		case http.MethodPost:
			s.handleAdminInviteUser(w, r, actor)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 5 && parts[4] == "role" {
		s.handleAdminUserRole(w, r, actor, parts[3])
		return
	}
	if len(parts) == 5 && parts[4] == "status" {
		s.handleAdminUserStatus(w, r, actor, parts[3])
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAdminUsers(w http.ResponseWriter, r *http.Request, actor Actor) {
	query := r.URL.Query()
	limit, err := queryInt(query.Get("limit"), 20)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
		return
	}
	offset, err := queryInt(query.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
		return
	}

	users, total, err := s.service.ListUsers(r.Context(), actor, strings.TrimSpace(query.Get("search")), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, userPayload(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": items, "total": total})
}

func (s *HTTPServer) handleAdminInviteUser(w http.ResponseWriter, r *http.Request, actor Actor) {
	var body UserInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.InviteUser(r.Context(), actor, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": userPayload(user)})
}

func (s *HTTPServer) handleAdminUserRole(w http.ResponseWriter, r *http.Request, actor Actor, userID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.UpdateUserRole(r.Context(), actor, userID, body.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

func (s *HTTPServer) handleAdminUserStatus(w http.ResponseWriter, r *http.Request, actor Actor, userID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Active == nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "active is required", nil)
		return
	}
	user, err := s.service.SetUserActive(r.Context(), actor, userID, *body.Active)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}
