package model

import "time"

// Subscription statuses. Active rows must carry both provider ids; the
// subscription reconciler repairs rows that violate this.
const (
	SubStatusPending  = "pending"
	SubStatusInactive = "inactive"
	SubStatusActive   = "active"
	SubStatusPastDue  = "past_due"
	SubStatusCanceled = "canceled"
)

// Subscription persists payment-provider subscription state per school.
type Subscription struct {
	BaseModel
	SchoolId             string     `gorm:"column:school_id;uniqueIndex" json:"schoolId"`
	Status               string     `gorm:"column:status" json:"status"`
	StripeCustomerId     string     `gorm:"column:stripe_customer_id" json:"stripeCustomerId"`
	StripeSubscriptionId string     `gorm:"column:stripe_subscription_id;index" json:"stripeSubscriptionId"`
	TotalTeacherSeats    int        `gorm:"column:total_teacher_seats" json:"totalTeacherSeats"`
	UsedTeacherSeats     int        `gorm:"column:used_teacher_seats" json:"usedTeacherSeats"`
	TotalStudentSeats    int        `gorm:"column:total_student_seats" json:"totalStudentSeats"`
	UsedStudentSeats     int        `gorm:"column:used_student_seats" json:"usedStudentSeats"`
	CurrentPeriodEnd     *time.Time `gorm:"column:current_period_end" json:"currentPeriodEnd"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// HasProviderIDs reports whether both payment-provider ids are present.
func (s *Subscription) HasProviderIDs() bool {
	return s.StripeCustomerId != "" && s.StripeSubscriptionId != ""
}
