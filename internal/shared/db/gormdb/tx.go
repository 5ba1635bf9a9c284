package gormdb

import (
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

// StartTx begins a transaction and returns a finisher to be deferred:
// it commits when *err is nil and rolls back otherwise.
func StartTx(db *gorm.DB) (*gorm.DB, func(*error), error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, nil, errors.Wrap(tx.Error, "failed to start transaction")
	}

	finish := func(err *error) {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}

		if *err != nil {
			if rollbackErr := tx.Rollback().Error; rollbackErr != nil {
				*err = errors.Wrapf(*err, "failed to rollback transaction: %s", rollbackErr)
			}
			return
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			*err = errors.Wrap(commitErr, "failed to commit transaction")
		}
	}

	return tx, finish, nil
}
