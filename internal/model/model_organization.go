package model

import "gorm.io/datatypes"

// Organization mirrors the identity-provider organization record.
// The provider owns the record; this row exists for joins and reporting and
// is healed by the reconcilers, never treated as the source of truth.
type Organization struct {
	BaseModel
	OrgId     string         `gorm:"column:org_id;uniqueIndex" json:"orgId"` // provider-assigned id, immutable
	Name      string         `gorm:"column:name" json:"name"`
	SchoolId  string         `gorm:"column:school_id;index" json:"schoolId"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:json" json:"metadata"` // last observed provider metadata
	AdminUser string         `gorm:"column:admin_user_id" json:"adminUserId"`
}

func (Organization) TableName() string {
	return "organizations"
}
