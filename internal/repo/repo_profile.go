package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/superlearn/school-central/internal/model"
	"github.com/superlearn/school-central/pkg/database"
)

type IProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.Profile, error)
	// Upsert is keyed by user_id so a re-run of onboarding recovery does not
	// duplicate the admin profile.
	Upsert(ctx context.Context, profile *model.Profile) error
}

type ProfileRepo struct {
	db database.IDatabase
}

func NewProfileRepo(db database.IDatabase) IProfileRepository {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.Database().WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepo) Upsert(ctx context.Context, profile *model.Profile) error {
	return r.db.Database().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"school_id", "role", "full_name", "email"}),
		}).
		Create(profile).Error
}
