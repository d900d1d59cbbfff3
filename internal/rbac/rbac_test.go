package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "student read", role: RoleStudent, action: ActionRead, allow: true},
		{name: "student submit", role: RoleStudent, action: ActionSubmit, allow: true},
		{name: "student review", role: RoleStudent, action: ActionReview, allow: false},
		{name: "student merge", role: RoleStudent, action: ActionMerge, allow: false},
		{name: "student edit any", role: RoleStudent, action: ActionEditAny, allow: false},
		{name: "reviewer review", role: RoleReviewer, action: ActionReview, allow: true},
		{name: "reviewer merge", role: RoleReviewer, action: ActionMerge, allow: true},
		{name: "reviewer edit any", role: RoleReviewer, action: ActionEditAny, allow: false},
		{name: "admin edit any", role: RoleAdmin, action: ActionEditAny, allow: true},
		{name: "reviewer manage users", role: RoleReviewer, action: ActionManageUsers, allow: false},
		{name: "admin manage users", role: RoleAdmin, action: ActionManageUsers, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestCanMutate(t *testing.T) {
	if !CanMutate(RoleStudent, "u1", "u1") {
		t.Fatal("owner should be able to mutate")
	}
	if CanMutate(RoleStudent, "u2", "u1") {
		t.Fatal("non-owner student should not be able to mutate")
	}
	if CanMutate(RoleStudent, "", "") {
		t.Fatal("anonymous actor should not match an empty owner")
	}
	if !CanMutate(RoleAdmin, "u2", "u1") {
		t.Fatal("admin should be able to mutate any record")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("reviewer") != RoleReviewer {
		t.Fatal("expected reviewer")
	}
	if Normalize("superuser") != RoleStudent {
		t.Fatal("unknown roles should fall back to student")
	}
}
