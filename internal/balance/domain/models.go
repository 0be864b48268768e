package domain

import (
	"time"

	"github.com/shopspring/decimal"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
)

// Balance is the stored solde of one (client, site) pair. It is a cache of the ledgers
// and can always be rebuilt by Recalculate.
type Balance struct {
	ClientCode string          `gorm:"primaryKey;type:varchar(32)" json:"client_code"`
	SiteCode   string          `gorm:"primaryKey;type:varchar(16)" json:"site_code"`
	Balance    decimal.Decimal `gorm:"type:numeric(16,2);not null;default:0" json:"balance"`
	UpdatedAt  time.Time       `gorm:"not null" json:"updated_at"`
}

func (Balance) TableName() string { return "balances" }

// Key identifies a balance.
type Key struct {
	ClientCode string `json:"client_code"`
	SiteCode   string `json:"site_code"`
}

// Sum is one ledger's contribution. Present is false when the ledger was skipped
// (disabled, absent or failing) and Value is then zero.
type Sum struct {
	Value   decimal.Decimal `json:"value"`
	Present bool            `json:"present"`
	Reason  string          `json:"reason,omitempty"`
}

const (
	SkipDisabled     = "disabled"
	SkipMissingTable = "missing_table"
	SkipQueryError   = "query_error"
)

// Breakdown is a full rescan of the four ledgers for one balance.
type Breakdown struct {
	Key
	Cautions        Sum             `json:"cautions"`
	Consignations   Sum             `json:"consignations"`
	Deconsignations Sum             `json:"deconsignations"`
	Restitutions    Sum             `json:"restitutions"`
	Total           decimal.Decimal `json:"total"`
}

// Sums returns the per-ledger sums keyed by kind.
func (b Breakdown) Sums() map[seqdomain.Kind]Sum {
	return map[seqdomain.Kind]Sum{
		seqdomain.KindCaution:        b.Cautions,
		seqdomain.KindConsignation:   b.Consignations,
		seqdomain.KindDeconsignation: b.Deconsignations,
		seqdomain.KindRestitution:    b.Restitutions,
	}
}

// Skipped lists the ledgers that did not contribute.
func (b Breakdown) Skipped() []seqdomain.Kind {
	var skipped []seqdomain.Kind
	for _, kind := range seqdomain.Kinds() {
		if !b.Sums()[kind].Present {
			skipped = append(skipped, kind)
		}
	}
	return skipped
}
