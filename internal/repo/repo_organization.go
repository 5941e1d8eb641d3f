package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/superlearn/school-central/internal/model"
	"github.com/superlearn/school-central/pkg/database"
)

type IOrganizationRepository interface {
	GetByOrgID(ctx context.Context, orgID string) (*model.Organization, error)
	GetBySchoolID(ctx context.Context, schoolID string) (*model.Organization, error)
	// Upsert writes the mirror row keyed by org_id. Replaying the same
	// provider state converges to the same row.
	Upsert(ctx context.Context, org *model.Organization) error
}

type OrganizationRepo struct {
	db database.IDatabase
}

func NewOrganizationRepo(db database.IDatabase) IOrganizationRepository {
	return &OrganizationRepo{db: db}
}

func (r *OrganizationRepo) GetByOrgID(ctx context.Context, orgID string) (*model.Organization, error) {
	var org model.Organization
	err := r.db.Database().WithContext(ctx).
		Where("org_id = ?", orgID).
		First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepo) GetBySchoolID(ctx context.Context, schoolID string) (*model.Organization, error) {
	var org model.Organization
	err := r.db.Database().WithContext(ctx).
		Where("school_id = ?", schoolID).
		First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepo) Upsert(ctx context.Context, org *model.Organization) error {
	return r.db.Database().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "school_id", "metadata", "admin_user_id"}),
		}).
		Create(org).Error
}
