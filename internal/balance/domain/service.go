package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListBalancesRequest struct {
	pagination.Pagination
	ClientCode string
	SiteCode   string
}

type ListBalancesResponse struct {
	pagination.PageInfo
	Balances []Balance `json:"balances"`
}

type Service interface {
	// Recalculate rescans the ledgers under the balance lock and stores the result.
	Recalculate(ctx context.Context, clientCode, siteCode string) (decimal.Decimal, error)
	// RecalculateTx does the same inside tx. The caller must hold the balance lock.
	RecalculateTx(ctx context.Context, tx *gorm.DB, clientCode, siteCode string) (decimal.Decimal, error)
	// Compute rescans without persisting. A nil tx reads outside any transaction.
	Compute(ctx context.Context, tx *gorm.DB, clientCode, siteCode string) (Breakdown, error)
	// GetBalance returns the stored balance, zero when none was ever computed.
	GetBalance(ctx context.Context, clientCode, siteCode string) (decimal.Decimal, error)
	Get(ctx context.Context, clientCode, siteCode string) (Balance, error)
	List(ctx context.Context, req ListBalancesRequest) (ListBalancesResponse, error)
	// Lock serializes writers of one balance. The returned func releases it.
	Lock(ctx context.Context, clientCode, siteCode string) (func(), error)
}

type Repository interface {
	SumAmount(ctx context.Context, db *gorm.DB, table, clientCode, siteCode string) (decimal.Decimal, error)
	SumPallets(ctx context.Context, db *gorm.DB, table, column, clientCode, siteCode string) (int64, error)
	Upsert(ctx context.Context, db *gorm.DB, balance *Balance) error
	Get(ctx context.Context, db *gorm.DB, clientCode, siteCode string) (*Balance, error)
	List(ctx context.Context, db *gorm.DB, req ListBalancesRequest, limit int) ([]*Balance, error)
	Keys(ctx context.Context, db *gorm.DB, tables []string) ([]Key, error)
}

var (
	ErrInvalidClientCode = errors.New("invalid_client_code")
	ErrInvalidSiteCode   = errors.New("invalid_site_code")
	ErrNotFound          = errors.New("not_found")
	ErrLockTimeout       = errors.New("balance_lock_timeout")
)

// PersistenceError reports a failed write of the balance row. It is the only error a
// recalculation surfaces once the inputs are valid.
type PersistenceError struct {
	ClientCode string
	SiteCode   string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist balance %s/%s: %v", e.ClientCode, e.SiteCode, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type triggerKey struct{}

const (
	TriggerCreate     = "create"
	TriggerUpdate     = "update"
	TriggerTransition = "transition"
	TriggerManual     = "manual"
	TriggerReconcile  = "reconcile"
)

// WithTrigger labels recalculations started under ctx for metrics and logs.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func TriggerFromContext(ctx context.Context) string {
	if trigger, ok := ctx.Value(triggerKey{}).(string); ok && trigger != "" {
		return trigger
	}
	return TriggerManual
}
