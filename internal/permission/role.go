// Package permission implements the role model, the local capability
// state, and the signed invite-link codec for sync sessions.
package permission

import "fmt"

// Role is a capability tier within a session. Higher roles include every
// capability of the tiers below them.
type Role int

const (
	RoleViewer Role = iota
	RoleCommenter
	RoleEditor
)

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleCommenter:
		return "commenter"
	case RoleEditor:
		return "editor"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole maps a wire role name to its Role. Unknown names are
// rejected rather than defaulted so a garbled link can never grant
// anything.
func ParseRole(s string) (Role, error) {
	switch s {
	case "viewer":
		return RoleViewer, nil
	case "commenter":
		return RoleCommenter, nil
	case "editor":
		return RoleEditor, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// CanEdit reports whether the role may mutate document layers.
func (r Role) CanEdit() bool {
	return r >= RoleEditor
}

// CanComment reports whether the role may add comments or annotations.
func (r Role) CanComment() bool {
	return r >= RoleCommenter
}
