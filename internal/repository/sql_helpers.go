package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// NewPostgresStore wires the gorm-backed repositories.
func NewPostgresStore(db *gorm.DB) Store {
	return Store{
		Users:    NewUserRepository(db),
		Messages: NewMessageRepository(db),
		Groups:   NewGroupRepository(db),
	}
}
