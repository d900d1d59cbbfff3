package rbac

type Role string
type Action string

const (
	RoleStudent  Role = "student"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionSubmit  Action = "submit"
	ActionComment Action = "comment"
	ActionReview  Action = "review"
	ActionMerge   Action = "merge"
	// ActionEditAny lets a role edit, retract or moderate records it does not own.
	ActionEditAny     Action = "edit_any"
	ActionManageUsers Action = "manage_users"
)

// Can reports whether role may perform action. Admin may do everything.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReviewer:
		return action == ActionRead || action == ActionSubmit || action == ActionComment || action == ActionReview || action == ActionMerge
	case RoleStudent:
		return action == ActionRead || action == ActionSubmit || action == ActionComment
	default:
		return false
	}
}

// CanMutate reports whether an actor may change a record owned by ownerID.
func CanMutate(role Role, actorID, ownerID string) bool {
	if actorID != "" && actorID == ownerID {
		return true
	}
	return Can(role, ActionEditAny)
}

// Normalize maps unknown roles to student.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleStudent, RoleReviewer, RoleAdmin:
		return Role(role)
	default:
		return RoleStudent
	}
}
