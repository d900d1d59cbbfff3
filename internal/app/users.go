package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"ideaflow/api/internal/rbac"
	"ideaflow/api/internal/store"
	"ideaflow/api/internal/util"
)

type UserInput struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

func parseRole(raw string) (rbac.Role, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return rbac.RoleStudent, nil
	}
	role := rbac.Role(raw)
	if rbac.Normalize(raw) != role {
		return "", validationError("role must be student, reviewer or admin", map[string]any{"role": raw})
	}
	return role, nil
}

// ListUsers pages through the directory for admins.
func (s *Service) ListUsers(ctx context.Context, actor Actor, search string, limit, offset int) ([]store.User, int, error) {
	if err := s.authorize(actor, rbac.ActionManageUsers); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListUsers(ctx, search, limit, offset)
}

// InviteUser adds a person to the directory. Inviting an email that is
// already known is a conflict.
func (s *Service) InviteUser(ctx context.Context, actor Actor, input UserInput) (store.User, error) {
	if err := s.authorize(actor, rbac.ActionManageUsers); err != nil {
		return store.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return store.User{}, validationError("a valid email is required", map[string]any{"fields": []string{"email"}})
	}
	role, err := parseRole(input.Role)
	if err != nil {
		return store.User{}, err
	}
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		name = email
	}

	if s.users != nil {
		existing, err := s.users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return store.User{}, conflictError("User already invited", map[string]any{"userId": existing.ID, "email": email})
		case !errors.Is(err, store.ErrNotFound):
			return store.User{}, fmt.Errorf("find user by email: %w", err)
		}
	}

	return s.store.UpsertUser(ctx, store.User{
		ID:          util.NewID("usr"),
		DisplayName: name,
		Email:       email,
		Role:        string(role),
		IsActive:    true,
	})
}

// UpdateUserRole changes a user's role. Admins cannot demote themselves.
func (s *Service) UpdateUserRole(ctx context.Context, actor Actor, userID, rawRole string) (store.User, error) {
	if err := s.authorize(actor, rbac.ActionManageUsers); err != nil {
		return store.User{}, err
	}
	role, err := parseRole(rawRole)
	if err != nil {
		return store.User{}, err
	}
	if userID == actor.ID && role != rbac.RoleAdmin {
		return store.User{}, conflictError("Admins cannot demote themselves", nil)
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	user.Role = string(role)
	return s.store.UpsertUser(ctx, user)
}

// SetUserActive activates or deactivates a user. Inactive reviewers stop
// receiving submission notifications.
func (s *Service) SetUserActive(ctx context.Context, actor Actor, userID string, active bool) (store.User, error) {
	if err := s.authorize(actor, rbac.ActionManageUsers); err != nil {
		return store.User{}, err
	}
	if userID == actor.ID && !active {
		return store.User{}, conflictError("Admins cannot deactivate themselves", nil)
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	user.IsActive = active
	return s.store.UpsertUser(ctx, user)
}

func (s *Service) findUser(ctx context.Context, userID string) (store.User, error) {
	if s.users == nil {
		return store.User{}, fmt.Errorf("user directory is not configured")
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, notFoundError("User not found", map[string]any{"userId": userID})
	}
	return user, err
}
