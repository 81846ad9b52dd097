package database

import (
	"context"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"gorm.io/gorm"
)

// WithTx runs fn inside one transaction. It commits when fn returns nil and
// rolls back on any error or panic; the returned error is always classed
// as apperr.Transaction, keeping whatever class fn's error already had.
func WithTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return apperr.FromDB(fn(tx))
	})
	if err != nil {
		return apperr.Transaction.Wrap(err)
	}
	return nil
}
