package tracing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsAmounts(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("site_code", "201"),
		attribute.String("amount", "1200.00"),
		attribute.String("notes", "free text"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("site_code"), attrs[0].Key)
}

func TestSafeErrorKeepsCancellation(t *testing.T) {
	wrapped := fmt.Errorf("recalculate: %w", context.Canceled)
	assert.ErrorIs(t, SafeError(wrapped), context.Canceled)
	assert.EqualError(t, SafeError(errors.New("pq: value 1200 for client C1")), "internal error")
	assert.NoError(t, SafeError(nil))
}
