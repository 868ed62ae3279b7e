package models

// Student is a student profile joined with its user account.
type Student struct {
	ID         string `db:"id" json:"id"`
	UserID     string `db:"user_id" json:"userId"`
	ClassID    string `db:"class_id" json:"classId"`
	RollNumber string `db:"roll_number" json:"rollNumber"`
	Name       string `db:"name" json:"name"`
	Email      string `db:"email" json:"email"`
}

// StudentContact is what absence alerts need to address a student.
type StudentContact struct {
	StudentID string `db:"student_id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	ClassName string `db:"class_name"`
}
