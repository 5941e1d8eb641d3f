package model

// School is a pre-provisioned school record an admin can claim at signup.
type School struct {
	BaseModel
	SchoolId        string `gorm:"column:school_id;uniqueIndex" json:"schoolId"` // school unique identifier
	Name            string `gorm:"column:name" json:"name"`
	Suburb          string `gorm:"column:suburb" json:"suburb"`
	State           string `gorm:"column:state" json:"state"`
	Claimed         bool   `gorm:"column:claimed" json:"claimed"`
	ClaimedByUserId string `gorm:"column:claimed_by_user_id" json:"claimedByUserId"`
	ClerkOrgId      string `gorm:"column:clerk_org_id" json:"clerkOrgId"` // identity-provider organization id, empty until linked
}

func (School) TableName() string {
	return "schools"
}
