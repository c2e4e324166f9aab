package repository

import (
	"fmt"

	"gorm.io/gorm"
)

// InitSchema creates the tables and the indexes gorm tags cannot express.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&userRecord{},
		&blockRecord{},
		&messageRecord{},
		&groupRecord{},
		&memberRecord{},
		&departureRecord{},
	); err != nil {
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	indexes := []string{
		// direct history of a pair, newest first
		`CREATE INDEX IF NOT EXISTS idx_messages_direct_pair
			ON messages (sender_id, receiver_id, created_at DESC)
			WHERE receiver_id IS NOT NULL;`,
		// unread scans for direct chats
		`CREATE INDEX IF NOT EXISTS idx_messages_unread
			ON messages (receiver_id, sender_id)
			WHERE is_read = false;`,
		`CREATE INDEX IF NOT EXISTS idx_messages_deleted_for_users
			ON messages USING GIN (deleted_for_users);`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
