// Package apperr holds the error classes shared by the observation core.
//
// Stores and services create or wrap errors with exactly one of these classes.
// Callers classify with Class.Has, which also sees classes wrapped further down
// the chain, so a NotFound that aborted a transaction is still a NotFound.
package apperr

import (
	"errors"

	"github.com/zeebo/errs"
	"gorm.io/gorm"
)

var (
	// Validation is returned for malformed or missing input.
	Validation = errs.Class("validation")
	// NotFound is returned when a referenced survey, question version,
	// campaign or object does not exist.
	NotFound = errs.Class("not found")
	// Conflict is returned when a uniqueness constraint rejects a write,
	// e.g. two first submissions racing on the same new object.
	Conflict = errs.Class("conflict")
	// Transaction wraps any failure inside a multi-statement write.
	Transaction = errs.Class("transaction")
	// Computation is returned by badge metrics for invalid parameters.
	Computation = errs.Class("computation")
)

// FromDB maps gorm errors onto the taxonomy. Errors that already carry a
// class are returned unchanged.
func FromDB(err error) error {
	switch {
	case err == nil:
		return nil
	case IsClassified(err):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound.Wrap(err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Conflict.Wrap(err)
	default:
		return err
	}
}

// IsClassified reports whether err already belongs to one of the classes.
func IsClassified(err error) bool {
	return Validation.Has(err) ||
		NotFound.Has(err) ||
		Conflict.Has(err) ||
		Transaction.Has(err) ||
		Computation.Has(err)
}
