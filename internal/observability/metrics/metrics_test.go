package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsBalanceKeys(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("kind", "caution"),
		attribute.String("client_code", "C001"),
		attribute.String("site_code", "201"),
		attribute.String("outcome", "ok"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("kind"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRecalculation(context.Background(), "create", "ok")
		m.RecordSubLedgerFallback(context.Background(), "cautions", "missing_table")
		m.RecordBalanceDrift(context.Background(), 3)
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordTransition(context.Background(), "caution", "NOT_VALIDATED", "VALIDATED")
		m.RecordSequenceCollision(context.Background(), "consignation")
	})
}
