package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent      UserRole = "student"
	RoleTeacher      UserRole = "teacher"
	RoleClassTeacher UserRole = "class_teacher"
	RoleHOD          UserRole = "hod"
	RoleAdmin        UserRole = "admin"
)

// Staff reports whether the role belongs to faculty or administration.
func (r UserRole) Staff() bool {
	switch r {
	case RoleTeacher, RoleClassTeacher, RoleHOD, RoleAdmin:
		return true
	default:
		return false
	}
}

// Supervisor reports whether the role may act on any class.
func (r UserRole) Supervisor() bool {
	return r == RoleHOD || r == RoleAdmin
}
