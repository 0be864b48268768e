package domain

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
)

// ValidationStatus is stored as its integer code.
type ValidationStatus int

const (
	StatusNotValidated ValidationStatus = 1
	StatusValidated    ValidationStatus = 2
)

func (s ValidationStatus) Valid() bool {
	return s == StatusNotValidated || s == StatusValidated
}

func (s ValidationStatus) String() string {
	switch s {
	case StatusNotValidated:
		return "NOT_VALIDATED"
	case StatusValidated:
		return "VALIDATED"
	default:
		return "UNKNOWN"
	}
}

func (s ValidationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ValidationStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseValidationStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalJSON accepts the name or the numeric code, quoted or bare.
func (s *ValidationStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	return s.UnmarshalText(data)
}

// ParseValidationStatus accepts the name or the numeric code.
func ParseValidationStatus(value string) (ValidationStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "NOT_VALIDATED", strconv.Itoa(int(StatusNotValidated)):
		return StatusNotValidated, nil
	case "VALIDATED", strconv.Itoa(int(StatusValidated)):
		return StatusValidated, nil
	default:
		return 0, ErrInvalidStatus
	}
}

// PalletUnitValue is the monetary value of one pallet.
var PalletUnitValue = decimal.NewFromInt(100)

// PalletsForAmount is the number of whole pallets a deposit amount covers.
func PalletsForAmount(amount decimal.Decimal) int {
	return int(amount.Div(PalletUnitValue).Floor().IntPart())
}

// Document carries the columns shared by the four ledgers.
type Document struct {
	DocumentNumber   string           `gorm:"primaryKey;type:varchar(40)" json:"document_number"`
	SiteCode         string           `gorm:"type:varchar(16);not null;index:,composite:client_site,priority:2" json:"site_code"`
	ClientCode       string           `gorm:"type:varchar(32);not null;index:,composite:client_site,priority:1" json:"client_code"`
	ValidationStatus ValidationStatus `gorm:"not null;default:1" json:"validation_status"`
	ValidatedAt      *time.Time       `json:"validated_at,omitempty"`
	ValidatedBy      string           `gorm:"type:varchar(64)" json:"validated_by,omitempty"`
	CreatedBy        string           `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	Notes            string           `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"not null" json:"updated_at"`
}

func (d *Document) Key() string { return d.DocumentNumber }

func (d *Document) BalanceKey() (string, string) { return d.ClientCode, d.SiteCode }

func (d *Document) Status() ValidationStatus { return d.ValidationStatus }

func (d *Document) Header() *Document { return d }

// SetStatus records a transition. validated_at and validated_by describe the current
// VALIDATED state only and are cleared otherwise.
func (d *Document) SetStatus(status ValidationStatus, actor string, at time.Time) {
	d.ValidationStatus = status
	d.UpdatedAt = at
	if status == StatusValidated {
		validatedAt := at
		d.ValidatedAt = &validatedAt
		d.ValidatedBy = actor
		return
	}
	d.ValidatedAt = nil
	d.ValidatedBy = ""
}

// Record is implemented by the four ledger models.
type Record interface {
	Kind() seqdomain.Kind
	TableName() string
	Key() string
	BalanceKey() (clientCode, siteCode string)
	Status() ValidationStatus
	SetStatus(status ValidationStatus, actor string, at time.Time)
	Header() *Document
	// Contribution is the signed effect on the balance while the record is validated.
	Contribution() decimal.Decimal
}

// Caution is a cash deposit. PalletCount is derived from Amount.
type Caution struct {
	Document
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	PalletCount int             `gorm:"not null;default:0" json:"pallet_count"`
}

func (Caution) TableName() string    { return seqdomain.KindCaution.Table() }
func (Caution) Kind() seqdomain.Kind { return seqdomain.KindCaution }

func (c *Caution) Contribution() decimal.Decimal { return c.Amount }

// SetAmount keeps PalletCount consistent with the amount.
func (c *Caution) SetAmount(amount decimal.Decimal) {
	c.Amount = amount
	c.PalletCount = PalletsForAmount(amount)
}

// Consignation hands pallets out to the client.
type Consignation struct {
	Document
	PalletToConsign int `gorm:"not null" json:"pallet_to_consign"`
}

func (Consignation) TableName() string    { return seqdomain.KindConsignation.Table() }
func (Consignation) Kind() seqdomain.Kind { return seqdomain.KindConsignation }

func (c *Consignation) Contribution() decimal.Decimal {
	return decimal.NewFromInt(int64(c.PalletToConsign)).Mul(PalletUnitValue).Neg()
}

// Deconsignation takes pallets back from the client.
type Deconsignation struct {
	Document
	PalletDeconsigned int `gorm:"not null" json:"pallet_deconsigned"`
}

func (Deconsignation) TableName() string    { return seqdomain.KindDeconsignation.Table() }
func (Deconsignation) Kind() seqdomain.Kind { return seqdomain.KindDeconsignation }

func (d *Deconsignation) Contribution() decimal.Decimal {
	return decimal.NewFromInt(int64(d.PalletDeconsigned)).Mul(PalletUnitValue)
}

// Restitution refunds part or all of the deposit.
type Restitution struct {
	Document
	Amount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
}

func (Restitution) TableName() string    { return seqdomain.KindRestitution.Table() }
func (Restitution) Kind() seqdomain.Kind { return seqdomain.KindRestitution }

func (r *Restitution) Contribution() decimal.Decimal { return r.Amount.Neg() }

// NewRecord returns an empty model of the given kind.
func NewRecord(kind seqdomain.Kind) (Record, error) {
	switch kind {
	case seqdomain.KindCaution:
		return &Caution{}, nil
	case seqdomain.KindConsignation:
		return &Consignation{}, nil
	case seqdomain.KindDeconsignation:
		return &Deconsignation{}, nil
	case seqdomain.KindRestitution:
		return &Restitution{}, nil
	default:
		return nil, ErrInvalidKind
	}
}

// Models lists every ledger model, for migrations.
func Models() []any {
	return []any{&Caution{}, &Consignation{}, &Deconsignation{}, &Restitution{}}
}

var (
	_ Record = (*Caution)(nil)
	_ Record = (*Consignation)(nil)
	_ Record = (*Deconsignation)(nil)
	_ Record = (*Restitution)(nil)
)
