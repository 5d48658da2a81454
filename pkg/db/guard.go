package db

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleWrite is returned when a guarded update matched no row because the
// guarded column changed after it was read.
var ErrStaleWrite = errors.New("row changed since it was read")

// LockByID loads dest by primary key and holds a row lock until the
// transaction ends. SQLite ignores the locking clause; writers are already
// serialized there.
func LockByID(tx *gorm.DB, dest any, id uuid.UUID) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(dest).Error
}

// GuardedUpdate applies updates only while column still equals expected.
func GuardedUpdate(tx *gorm.DB, model any, id uuid.UUID, column string, expected any, updates map[string]any) error {
	res := tx.Model(model).
		Where("id = ?", id).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: expected}).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}
