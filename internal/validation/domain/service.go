package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	"gorm.io/gorm"
)

// Coordinator decides when a ledger write must recompute its balance.
//
// With a non-nil tx the recompute runs inside tx after the write, and its error is
// returned so the caller rolls both back. The caller holds the balance lock. With a nil
// tx the recompute takes the lock and commits on its own; a failure is logged and
// returned but the earlier write stays committed.
type Coordinator interface {
	// OnCreate recomputes when a caution or restitution is created VALIDATED.
	OnCreate(ctx context.Context, tx *gorm.DB, record ledgerdomain.Record) error
	// OnUpdate recomputes when the status changed or the record is VALIDATED.
	OnUpdate(ctx context.Context, tx *gorm.DB, record ledgerdomain.Record, previous ledgerdomain.ValidationStatus) error
	// Transition persists a status change on record and then runs OnUpdate.
	Transition(ctx context.Context, tx *gorm.DB, record ledgerdomain.Record, target ledgerdomain.ValidationStatus, actor string) error
}

var (
	ErrNilRecord = errors.New("nil_record")
)
