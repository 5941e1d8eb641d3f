package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/superlearn/school-central/internal/model"
	"github.com/superlearn/school-central/pkg/database"
)

type ISubscriptionRepository interface {
	GetBySchoolID(ctx context.Context, schoolID string) (*model.Subscription, error)
	GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	Create(ctx context.Context, sub *model.Subscription) error
	Update(ctx context.Context, sub *model.Subscription) error
	// SetProviderIDs writes just the two provider id columns. Used as the
	// one-shot corrective update after a failed post-upsert verification.
	SetProviderIDs(ctx context.Context, schoolID, customerID, subscriptionID string) error
	SetStatusBySubscriptionID(ctx context.Context, subscriptionID, status string) error
	// ConsumeTeacherSeat increments used_teacher_seats, conditional on a seat
	// being available. Returns ErrNoSeatsAvailable when the school is full.
	ConsumeTeacherSeat(ctx context.Context, schoolID string) error
}

type SubscriptionRepo struct {
	db database.IDatabase
}

func NewSubscriptionRepo(db database.IDatabase) ISubscriptionRepository {
	return &SubscriptionRepo{db: db}
}

func (r *SubscriptionRepo) GetBySchoolID(ctx context.Context, schoolID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Database().WithContext(ctx).
		Where("school_id = ?", schoolID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepo) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Database().WithContext(ctx).
		Where("stripe_subscription_id = ?", subscriptionID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	return r.db.Database().WithContext(ctx).Create(sub).Error
}

func (r *SubscriptionRepo) Update(ctx context.Context, sub *model.Subscription) error {
	return r.db.Database().WithContext(ctx).
		Model(&model.Subscription{}).
		Where("school_id = ?", sub.SchoolId).
		Updates(map[string]interface{}{
			"status":                 sub.Status,
			"stripe_customer_id":     sub.StripeCustomerId,
			"stripe_subscription_id": sub.StripeSubscriptionId,
			"total_teacher_seats":    sub.TotalTeacherSeats,
			"total_student_seats":    sub.TotalStudentSeats,
			"current_period_end":     sub.CurrentPeriodEnd,
		}).Error
}

func (r *SubscriptionRepo) SetProviderIDs(ctx context.Context, schoolID, customerID, subscriptionID string) error {
	res := r.db.Database().WithContext(ctx).
		Model(&model.Subscription{}).
		Where("school_id = ?", schoolID).
		Updates(map[string]interface{}{
			"stripe_customer_id":     customerID,
			"stripe_subscription_id": subscriptionID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepo) SetStatusBySubscriptionID(ctx context.Context, subscriptionID, status string) error {
	res := r.db.Database().WithContext(ctx).
		Model(&model.Subscription{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepo) ConsumeTeacherSeat(ctx context.Context, schoolID string) error {
	res := r.db.Database().WithContext(ctx).
		Model(&model.Subscription{}).
		Where("school_id = ? AND used_teacher_seats < total_teacher_seats", schoolID).
		Update("used_teacher_seats", gorm.Expr("used_teacher_seats + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetBySchoolID(ctx, schoolID); err != nil {
			return err
		}
		return ErrNoSeatsAvailable
	}
	return nil
}
