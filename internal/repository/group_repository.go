package repository

import (
	"context"
	"errors"
	"time"

	"relay-chat/internal/domain/group"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresGroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &PostgresGroupRepository{db: db}
}

func (r *PostgresGroupRepository) Create(ctx context.Context, g *group.Group) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := recordFromGroup(*g)
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
				return relay_errors.ErrAlreadyExists
			}
			return err
		}
		if len(g.Members) == 0 {
			return nil
		}
		members := make([]memberRecord, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, recordFromMember(g.ID, m))
		}
		return tx.Create(&members).Error
	})
}

func (r *PostgresGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (group.Group, error) {
	var rec groupRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return group.Group{}, relay_errors.ErrNotFound
		}
		return group.Group{}, err
	}
	groups, err := r.hydrate(ctx, []groupRecord{rec})
	if err != nil {
		return group.Group{}, err
	}
	return groups[0], nil
}

func (r *PostgresGroupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]group.Group, error) {
	db := r.db.WithContext(ctx)
	memberOf := db.Model(&memberRecord{}).Select("group_id").Where("user_id = ?", userID)
	departedFrom := db.Model(&departureRecord{}).Select("group_id").Where("user_id = ?", userID)

	var recs []groupRecord
	err := db.Where("id IN (?) OR id IN (?)", memberOf, departedFrom).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, recs)
}

// hydrate loads members and departures for recs in two queries.
func (r *PostgresGroupRepository) hydrate(ctx context.Context, recs []groupRecord) ([]group.Group, error) {
	if len(recs) == 0 {
		return []group.Group{}, nil
	}
	ids := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}

	var members []memberRecord
	if err := r.db.WithContext(ctx).Where("group_id IN ?", ids).Order("joined_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	var departures []departureRecord
	if err := r.db.WithContext(ctx).Where("group_id IN ?", ids).Order("departed_at ASC").Find(&departures).Error; err != nil {
		return nil, err
	}

	membersBy := make(map[uuid.UUID][]memberRecord)
	for _, m := range members {
		membersBy[m.GroupID] = append(membersBy[m.GroupID], m)
	}
	departuresBy := make(map[uuid.UUID][]departureRecord)
	for _, d := range departures {
		departuresBy[d.GroupID] = append(departuresBy[d.GroupID], d)
	}

	out := make([]group.Group, 0, len(recs))
	for _, rec := range recs {
		out = append(out, groupFromRecords(rec, membersBy[rec.ID], departuresBy[rec.ID]))
	}
	return out, nil
}

func (r *PostgresGroupRepository) AddMember(ctx context.Context, groupID uuid.UUID, m group.Member) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lockGroup(tx, groupID); err != nil {
			return err
		}
		if err := tx.Delete(&departureRecord{}, "group_id = ? AND user_id = ?", groupID, m.UserID).Error; err != nil {
			return err
		}
		rec := recordFromMember(groupID, m)
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
				return relay_errors.ErrAlreadyExists
			}
			return err
		}
		return tx.Model(&groupRecord{}).Where("id = ?", groupID).Update("updated_at", time.Now().UTC()).Error
	})
}

func (r *PostgresGroupRepository) UpdateMember(ctx context.Context, groupID, userID uuid.UUID, patch MemberPatch) error {
	updates := map[string]interface{}{}
	if patch.LastReadAt != nil {
		updates["last_read_at"] = gorm.Expr("GREATEST(last_read_at, ?)", *patch.LastReadAt)
	}
	if patch.UnreadCount != nil {
		updates["unread_count"] = *patch.UnreadCount
	}
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&memberRecord{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresGroupRepository) RemoveMember(ctx context.Context, groupID uuid.UUID, kind group.DepartureKind, d group.Departure) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lockGroup(tx, groupID); err != nil {
			return err
		}
		var m memberRecord
		err := tx.Where("group_id = ? AND user_id = ?", groupID, d.UserID).First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return relay_errors.ErrNotFound
			}
			return err
		}
		if d.JoinedAt.IsZero() {
			d.JoinedAt = m.JoinedAt
		}
		if err := tx.Delete(&memberRecord{}, "group_id = ? AND user_id = ?", groupID, d.UserID).Error; err != nil {
			return err
		}
		dep := departureRecord{
			GroupID:    groupID,
			UserID:     d.UserID,
			Kind:       string(kind),
			JoinedAt:   d.JoinedAt,
			DepartedAt: d.At,
			ByUserID:   d.By,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "joined_at", "departed_at", "by_user_id"}),
		}).Create(&dep).Error
		if err != nil {
			return err
		}
		return tx.Model(&groupRecord{}).Where("id = ?", groupID).Update("updated_at", time.Now().UTC()).Error
	})
}

func (r *PostgresGroupRepository) SetLatestMessage(ctx context.Context, groupID uuid.UUID, latest group.LatestMessage) error {
	var rec groupRecord
	applyLatest(&rec, latest)
	return r.db.WithContext(ctx).
		Model(&groupRecord{}).
		Where("id = ? AND (latest_created_at IS NULL OR latest_created_at <= ?)", groupID, latest.CreatedAt).
		Updates(latestColumns(rec)).Error
}

func (r *PostgresGroupRepository) RefreshLatestMessage(ctx context.Context, groupID uuid.UUID, latest group.LatestMessage) error {
	var rec groupRecord
	applyLatest(&rec, latest)
	return r.db.WithContext(ctx).
		Model(&groupRecord{}).
		Where("id = ? AND latest_message_id = ?", groupID, latest.MessageID).
		Updates(latestColumns(rec)).Error
}

func (r *PostgresGroupRepository) lockGroup(tx *gorm.DB, groupID uuid.UUID) error {
	var rec groupRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", groupID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return relay_errors.ErrNotFound
	}
	return err
}

func latestColumns(rec groupRecord) map[string]interface{} {
	return map[string]interface{}{
		"latest_message_id": rec.LatestMessageID,
		"latest_text":       rec.LatestText,
		"latest_type":       rec.LatestType,
		"latest_sender_id":  rec.LatestSenderID,
		"latest_created_at": rec.LatestCreatedAt,
	}
}
