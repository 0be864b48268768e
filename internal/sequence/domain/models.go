package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind identifies one of the four deposit ledgers.
type Kind string

const (
	KindCaution        Kind = "caution"
	KindConsignation   Kind = "consignation"
	KindDeconsignation Kind = "deconsignation"
	KindRestitution    Kind = "restitution"
)

// MaxSequence is the largest value the four-digit suffix can carry.
const MaxSequence = 9999

var kinds = []Kind{KindCaution, KindConsignation, KindDeconsignation, KindRestitution}

// Kinds returns the ledger kinds in balance formula order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

var prefixes = map[Kind]string{
	KindCaution:        "CT",
	KindConsignation:   "CS",
	KindDeconsignation: "DC",
	KindRestitution:    "RC",
}

func (k Kind) Prefix() string { return prefixes[k] }

// Table is the ledger table storing documents of this kind.
func (k Kind) Table() string { return string(k) + "s" }

func (k Kind) Valid() bool {
	_, ok := prefixes[k]
	return ok
}

// ParseKind accepts the singular or plural form, e.g. "caution" or "cautions".
func ParseKind(value string) (Kind, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	kind := Kind(strings.TrimSuffix(value, "s"))
	if !kind.Valid() {
		return "", ErrInvalidKind
	}
	return kind, nil
}

func kindForPrefix(prefix string) (Kind, bool) {
	for kind, p := range prefixes {
		if p == prefix {
			return kind, true
		}
	}
	return "", false
}

var siteCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{1,16}$`)

// ValidSiteCode reports whether code can be embedded in a document number.
func ValidSiteCode(code string) bool {
	return siteCodePattern.MatchString(code)
}

// DocumentNumber is the decoded form of PREFIX+SITE+YYMMDD-SEQ.
type DocumentNumber struct {
	Kind     Kind
	SiteCode string
	Date     time.Time
	Seq      int
}

func (n DocumentNumber) String() string {
	return fmt.Sprintf("%s%s%s-%04d", n.Kind.Prefix(), n.SiteCode, n.Date.Format("060102"), n.Seq)
}

// Period is the YYYYMM scope the sequence belongs to.
func (n DocumentNumber) Period() string {
	return Period(n.Date)
}

func Period(t time.Time) string {
	return t.Format("200601")
}

// MonthBounds returns [first instant of the month, first instant of the next month) in t's location.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// The site is everything between the prefix and the six date digits.
var numberPattern = regexp.MustCompile(`^(CT|CS|DC|RC)([A-Za-z0-9]+)(\d{6})-(\d{4})$`)

// Parse decodes a document number. Anything not matching the exact format, carrying
// an impossible date or a zero sequence is rejected with ErrMalformedNumber.
func Parse(value string) (DocumentNumber, error) {
	m := numberPattern.FindStringSubmatch(value)
	if m == nil {
		return DocumentNumber{}, fmt.Errorf("%w: %q", ErrMalformedNumber, value)
	}
	kind, _ := kindForPrefix(m[1])
	date, err := time.Parse("060102", m[3])
	if err != nil {
		return DocumentNumber{}, fmt.Errorf("%w: %q: bad date", ErrMalformedNumber, value)
	}
	seq, _ := strconv.Atoi(m[4])
	if seq == 0 {
		return DocumentNumber{}, fmt.Errorf("%w: %q: zero sequence", ErrMalformedNumber, value)
	}
	return DocumentNumber{Kind: kind, SiteCode: m[2], Date: date, Seq: seq}, nil
}

// ParseFor decodes value and checks it belongs to the given kind and site.
func ParseFor(kind Kind, siteCode, value string) (DocumentNumber, error) {
	n, err := Parse(value)
	if err != nil {
		return DocumentNumber{}, err
	}
	if n.Kind != kind {
		return DocumentNumber{}, fmt.Errorf("%w: %q is not a %s", ErrMalformedNumber, value, kind)
	}
	if n.SiteCode != siteCode {
		return DocumentNumber{}, fmt.Errorf("%w: %q is not from site %s", ErrMalformedNumber, value, siteCode)
	}
	return n, nil
}

// Counter holds the last reserved sequence of one (kind, site, month) scope.
type Counter struct {
	Kind      Kind      `gorm:"primaryKey;type:varchar(16)" json:"kind"`
	SiteCode  string    `gorm:"primaryKey;type:varchar(16);column:site_code" json:"site_code"`
	Period    string    `gorm:"primaryKey;type:char(6)" json:"period"`
	LastValue int       `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Counter) TableName() string { return "document_sequences" }
