package app

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaflow/api/internal/logging"
)

func TestInviteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.InviteUser(ctx, admin, UserInput{DisplayName: "Jo", Email: " Jo@Example.com ", Role: "reviewer"})
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", user.Email)
	assert.Equal(t, "reviewer", user.Role)
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, user.ID)

	_, err = env.svc.InviteUser(ctx, admin, UserInput{Email: "jo@example.com"})
	requireDomainError(t, err, http.StatusConflict)

	_, err = env.svc.InviteUser(ctx, admin, UserInput{Email: "not-an-email"})
	requireDomainError(t, err, http.StatusUnprocessableEntity)

	_, err = env.svc.InviteUser(ctx, admin, UserInput{Email: "lee@example.com", Role: "owner"})
	requireDomainError(t, err, http.StatusUnprocessableEntity)

	_, err = env.svc.InviteUser(ctx, reviewer, UserInput{Email: "lee@example.com"})
	requireDomainError(t, err, http.StatusForbidden)
}

func TestUpdateUserRoleAndSelfDemotion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.UpdateUserRole(ctx, admin, student.ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, "reviewer", user.Role)

	_, err = env.svc.UpdateUserRole(ctx, admin, admin.ID, "student")
	requireDomainError(t, err, http.StatusConflict)

	_, err = env.svc.UpdateUserRole(ctx, admin, "usr_missing", "student")
	requireDomainError(t, err, http.StatusNotFound)
}

func TestDeactivatedReviewerStopsReceivingSubmissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SetUserActive(ctx, admin, reviewer.ID, false)
	require.NoError(t, err)

	_, err = env.svc.SetUserActive(ctx, admin, admin.ID, false)
	requireDomainError(t, err, http.StatusConflict)

	env.submit(t, student, "Quiet library hours", "Extended silent study periods")
	assert.Empty(t, env.notifier.fanouts, "no active reviewers remain")
}

func TestListUsersSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	users, total, err := env.svc.ListUsers(ctx, admin, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, users, 5)

	users, total, err = env.svc.ListUsers(ctx, admin, "riley", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, reviewer.ID, users[0].ID)

	_, _, err = env.svc.ListUsers(ctx, student, "", 10, 0)
	requireDomainError(t, err, http.StatusForbidden)
}

func TestHTTPAdminUsers(t *testing.T) {
	env := newTestEnv(t)
	handler := NewHTTPServer(env.svc, "*", nil, logging.Discard()).Handler()

	code, _ := doJSON(t, handler, &student, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := doJSON(t, handler, &admin, http.MethodPost, "/api/admin/users", map[string]any{
		"displayName": "Jo",
		"email":       "jo@example.com",
	})
	require.Equal(t, http.StatusCreated, code, body)
	created := body["user"].(map[string]any)
	assert.Equal(t, "student", created["role"])
	userID := created["id"].(string)

	code, body = doJSON(t, handler, &admin, http.MethodPost, "/api/admin/users", map[string]any{"email": "jo@example.com"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body["code"])

	code, body = doJSON(t, handler, &admin, http.MethodPut, "/api/admin/users/"+userID+"/role", map[string]any{"role": "reviewer"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "reviewer", body["user"].(map[string]any)["role"])

	code, _ = doJSON(t, handler, &admin, http.MethodPut, "/api/admin/users/"+userID+"/status", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = doJSON(t, handler, &admin, http.MethodPut, "/api/admin/users/"+userID+"/status", map[string]any{"active": false})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["user"].(map[string]any)["isActive"])

	code, body = doJSON(t, handler, &admin, http.MethodGet, "/api/admin/users?search=jo&limit=5", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(1), body["total"])

	code, _ = doJSON(t, handler, &admin, http.MethodGet, "/api/admin/users?limit=-1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}
