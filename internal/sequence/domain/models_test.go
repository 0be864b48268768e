package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentNumberFormat(t *testing.T) {
	n := DocumentNumber{
		Kind:     KindCaution,
		SiteCode: "201",
		Date:     time.Date(2025, time.August, 9, 0, 0, 0, 0, time.UTC),
		Seq:      7,
	}
	assert.Equal(t, "CT201250809-0007", n.String())
	assert.Equal(t, "202508", n.Period())

	n.Kind = KindDeconsignation
	n.Seq = 1234
	assert.Equal(t, "DC201250809-1234", n.String())
}

func TestParseRoundTrip(t *testing.T) {
	n, err := Parse("RC201250809-0007")
	require.NoError(t, err)
	assert.Equal(t, KindRestitution, n.Kind)
	assert.Equal(t, "201", n.SiteCode)
	assert.Equal(t, 7, n.Seq)
	assert.Equal(t, time.Date(2025, time.August, 9, 0, 0, 0, 0, time.UTC), n.Date)
	assert.Equal(t, "RC201250809-0007", n.String())

	n, err = Parse("CSWH12251231-9999")
	require.NoError(t, err)
	assert.Equal(t, "WH12", n.SiteCode)
	assert.Equal(t, KindConsignation, n.Kind)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, value := range []string{
		"",
		"CT2012508-0007",
		"CT201250809-007",
		"CT201250809-00071",
		"CT201250809-0000",
		"CT201251309-0001",
		"CT201250832-0001",
		"XX201250809-0001",
		"CT201250809_0001",
		"CT-201250809-0001",
		"CT201250809-11A",
	} {
		_, err := Parse(value)
		assert.ErrorIs(t, err, ErrMalformedNumber, value)
	}
}

func TestParseForChecksScope(t *testing.T) {
	_, err := ParseFor(KindCaution, "201", "CT201250809-0001")
	require.NoError(t, err)

	_, err = ParseFor(KindRestitution, "201", "CT201250809-0001")
	assert.ErrorIs(t, err, ErrMalformedNumber)

	_, err = ParseFor(KindCaution, "202", "CT201250809-0001")
	assert.ErrorIs(t, err, ErrMalformedNumber)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("Deconsignations")
	require.NoError(t, err)
	assert.Equal(t, KindDeconsignation, kind)
	assert.Equal(t, "deconsignations", kind.Table())

	_, err = ParseKind("refund")
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestMonthBounds(t *testing.T) {
	from, to := MonthBounds(time.Date(2024, time.December, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), to)
}
