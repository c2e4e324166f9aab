package repository

import (
	"context"
	"errors"
	"time"

	"relay-chat/internal/domain/user"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	rec := userRecord{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	res := r.db.WithContext(ctx).Create(&rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) || isUniqueViolation(res.Error) {
			return relay_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	var rec userRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user.User{}, relay_errors.ErrNotFound
		}
		return user.User{}, err
	}

	var blocked []uuid.UUID
	err = r.db.WithContext(ctx).
		Model(&blockRecord{}).
		Where("user_id = ?", id).
		Pluck("blocked_user_id", &blocked).Error
	if err != nil {
		return user.User{}, err
	}
	return userFromRecord(rec, blocked), nil
}

func (r *PostgresUserRepository) GetMany(ctx context.Context, ids []uuid.UUID) ([]user.User, error) {
	if len(ids) == 0 {
		return []user.User{}, nil
	}
	var recs []userRecord
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, err
	}
	var blocks []blockRecord
	if err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&blocks).Error; err != nil {
		return nil, err
	}
	byUser := make(map[uuid.UUID][]uuid.UUID, len(recs))
	for _, b := range blocks {
		byUser[b.UserID] = append(byUser[b.UserID], b.BlockedUserID)
	}
	out := make([]user.User, 0, len(recs))
	for _, rec := range recs {
		out = append(out, userFromRecord(rec, byUser[rec.ID]))
	}
	return out, nil
}

func (r *PostgresUserRepository) Block(ctx context.Context, userID, targetID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&blockRecord{UserID: userID, BlockedUserID: targetID, CreatedAt: time.Now().UTC()})
	return res.Error
}

func (r *PostgresUserRepository) Unblock(ctx context.Context, userID, targetID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&blockRecord{}, "user_id = ? AND blocked_user_id = ?", userID, targetID).Error
}
