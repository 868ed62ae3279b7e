package models

type Subject struct {
	ID           string `db:"id" json:"id"`
	Code         string `db:"code" json:"code"`
	Name         string `db:"name" json:"name"`
	DepartmentID string `db:"department_id" json:"departmentId"`
}
