package repository

import (
	"context"
	"errors"

	"relay-chat/internal/domain/message"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	rec := recordFromMessage(*m)
	res := r.db.WithContext(ctx).Create(&rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) || isUniqueViolation(res.Error) {
			return relay_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var rec messageRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, relay_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return messageFromRecord(rec), nil
}

func (r *PostgresMessageRepository) Update(ctx context.Context, id uuid.UUID, fn func(*message.Message) error) (message.Message, error) {
	var out message.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec messageRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return relay_errors.ErrNotFound
			}
			return err
		}
		m := messageFromRecord(rec)
		if err := fn(&m); err != nil {
			return err
		}
		next := recordFromMessage(m)
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return message.Message{}, err
	}
	return out, nil
}

func (r *PostgresMessageRepository) Find(ctx context.Context, f MessageFilter) ([]message.Message, error) {
	var recs []messageRecord
	q := applyMessageFilter(r.db.WithContext(ctx).Model(&messageRecord{}), f)
	if f.Oldest {
		q = q.Order("created_at ASC, id ASC")
	} else {
		q = q.Order("created_at DESC, id DESC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]message.Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, messageFromRecord(rec))
	}
	return out, nil
}

func (r *PostgresMessageRepository) Count(ctx context.Context, f MessageFilter) (int64, error) {
	var n int64
	err := applyMessageFilter(r.db.WithContext(ctx).Model(&messageRecord{}), f).Count(&n).Error
	return n, err
}

func (r *PostgresMessageRepository) MarkDirectRead(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&messageRecord{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = false AND withheld = false", senderID, receiverID).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *PostgresMessageRepository) DirectCounterparts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS other_id
		FROM messages
		WHERE receiver_id IS NOT NULL AND (sender_id = ? OR receiver_id = ?)`,
		userID, userID, userID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// applyMessageFilter is the SQL rendition of MessageFilter.Match.
func applyMessageFilter(q *gorm.DB, f MessageFilter) *gorm.DB {
	if p := f.DirectPair; p != nil {
		q = q.Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", p.A, p.B, p.B, p.A)
	}
	if f.GroupID.Valid {
		q = q.Where("group_id = ?", f.GroupID.UUID)
	}
	if f.SenderID.Valid {
		q = q.Where("sender_id = ?", f.SenderID.UUID)
	}
	if f.ExcludeSenderID.Valid {
		q = q.Where("sender_id <> ?", f.ExcludeSenderID.UUID)
	}
	if f.ReceiverID.Valid {
		q = q.Where("receiver_id = ?", f.ReceiverID.UUID)
	}
	if f.VisibleTo.Valid {
		v := f.VisibleTo.UUID
		q = q.Where(`(
			message_type = ?
			OR (sender_id = ? AND NOT deleted_for_sender)
			OR (sender_id <> ? AND (
				(receiver_id = ? AND NOT deleted_for_receiver AND NOT withheld)
				OR (group_id IS NOT NULL AND NOT (? = ANY(COALESCE(deleted_for_users, '{}'::text[]))))
			))
		)`, string(message.TypeSystem), v, v, v, v.String())
	}
	if !f.After.IsZero() {
		q = q.Where("created_at > ?", f.After)
	}
	if !f.NotBefore.IsZero() {
		q = q.Where("created_at >= ?", f.NotBefore)
	}
	if !f.NotAfter.IsZero() {
		q = q.Where("created_at <= ?", f.NotAfter)
	}
	if !f.Before.IsZero() {
		q = q.Where("created_at < ?", f.Before)
	}
	if f.UnreadOnly {
		q = q.Where("is_read = false")
	}
	if f.ExcludeSystem {
		q = q.Where("message_type <> ?", string(message.TypeSystem))
	}
	return q
}
