// Package writepath is the repeated pattern every repository uses to
// change an aggregate: begin transaction, write entity state, write
// events+outbox, commit (spec §4.2). Grounded on the teacher's literal
// `s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {...})` call sites
// in internal/service/wallet_service.go, pulled out into one reusable
// helper per spec §9's "explicit functions, no hidden per-instance state".
package writepath

import (
	"context"
	"errors"

	"github.com/richardliu001/eventcore/internal/resultkind"
	"gorm.io/gorm"
)

// Fn is the unit of work executed inside one database transaction.
type Fn func(tx *gorm.DB) *resultkind.Error

// WithTransaction runs fn inside a single database transaction. Any
// failure aborts the transaction and the caller receives the original
// failure (spec §4.2 "Failure"): an error fn returns is passed through
// unchanged, so a unique-constraint violation inside fn surfaces as
// whatever kind fn reports for it. Only a transaction failure that fn did
// not report (e.g. at commit) is classified here: gorm.ErrRecordNotFound
// as not-found, anything else as a concurrency error.
func WithTransaction(ctx context.Context, db *gorm.DB, fn Fn) *resultkind.Error {
	var callbackErr *resultkind.Error
	txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			callbackErr = err
			return err // abort the transaction
		}
		return nil
	})
	if callbackErr != nil {
		return callbackErr
	}
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return resultkind.New(resultkind.NotFound, txErr.Error())
		}
		return resultkind.New(resultkind.Concurrency, txErr.Error())
	}
	return nil
}
