package context

import (
	stdcontext "context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorAndRequestRoundTrip(t *testing.T) {
	ctx := WithRequestID(stdcontext.Background(), " req-1 ")
	ctx = WithActor(ctx, "back_office", "u-42")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "back_office", actorType)
	assert.Equal(t, "u-42", actorID)
}

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx, id := EnsureCorrelationID(stdcontext.Background())
	_, err := ulid.Parse(id)
	require.NoError(t, err)

	again, sameID := EnsureCorrelationID(ctx)
	assert.Equal(t, id, sameID)
	assert.Equal(t, id, CorrelationIDFromContext(again))
}

func TestCorrelationIDsAreMonotonic(t *testing.T) {
	first := NewCorrelationID()
	second := NewCorrelationID()
	assert.Less(t, first, second)
}

func TestNilContextIsEmpty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(nil))
}
