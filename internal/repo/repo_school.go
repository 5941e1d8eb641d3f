package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/superlearn/school-central/internal/model"
	"github.com/superlearn/school-central/pkg/database"
)

type ISchoolRepository interface {
	GetBySchoolID(ctx context.Context, schoolID string) (*model.School, error)
	// Claim marks the school claimed by userID. The update is conditional on
	// claimed=false; a lost race returns ErrSchoolAlreadyClaimed.
	Claim(ctx context.Context, schoolID, userID string) error
	LinkOrganization(ctx context.Context, schoolID, orgID string) error
}

type SchoolRepo struct {
	db database.IDatabase
}

func NewSchoolRepo(db database.IDatabase) ISchoolRepository {
	return &SchoolRepo{db: db}
}

func (r *SchoolRepo) GetBySchoolID(ctx context.Context, schoolID string) (*model.School, error) {
	var school model.School
	err := r.db.Database().WithContext(ctx).
		Where("school_id = ?", schoolID).
		First(&school).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &school, nil
}

func (r *SchoolRepo) Claim(ctx context.Context, schoolID, userID string) error {
	res := r.db.Database().WithContext(ctx).
		Model(&model.School{}).
		Where("school_id = ? AND claimed = ?", schoolID, false).
		Updates(map[string]interface{}{
			"claimed":            true,
			"claimed_by_user_id": userID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// either the school does not exist or another request won the race
		if _, err := r.GetBySchoolID(ctx, schoolID); err != nil {
			return err
		}
		return ErrSchoolAlreadyClaimed
	}
	return nil
}

func (r *SchoolRepo) LinkOrganization(ctx context.Context, schoolID, orgID string) error {
	res := r.db.Database().WithContext(ctx).
		Model(&model.School{}).
		Where("school_id = ?", schoolID).
		Update("clerk_org_id", orgID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
