package models

// Teacher is a faculty profile joined with its user account.
type Teacher struct {
	ID           string `db:"id" json:"id"`
	UserID       string `db:"user_id" json:"userId"`
	DepartmentID string `db:"department_id" json:"departmentId"`
	Name         string `db:"name" json:"name"`
	Email        string `db:"email" json:"email"`
}
