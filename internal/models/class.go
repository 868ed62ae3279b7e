package models

// Class is a cohort of students with an optional class teacher.
type Class struct {
	ID             string  `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	DepartmentID   string  `db:"department_id" json:"departmentId"`
	ClassTeacherID *string `db:"class_teacher_id" json:"classTeacherId,omitempty"`
	Semester       int     `db:"semester" json:"semester"`
}
