package model

// Profile roles.
const (
	ProfileRoleAdmin   = "admin"
	ProfileRoleTeacher = "teacher"
)

// Profile is the relational record for an identity-provider user.
type Profile struct {
	BaseModel
	UserId   string `gorm:"column:user_id;uniqueIndex" json:"userId"` // identity-provider user id
	SchoolId string `gorm:"column:school_id;index" json:"schoolId"`
	Role     string `gorm:"column:role" json:"role"`
	FullName string `gorm:"column:full_name" json:"fullName"`
	Email    string `gorm:"column:email" json:"email"`
}

func (Profile) TableName() string {
	return "profiles"
}
