package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()

	_, ok := UserIDFromContext(ctx)
	assert.False(t, ok)
	_, ok = RequestIDFromContext(ctx)
	assert.False(t, ok)

	ctx = ContextWithUserID(ctx, 42)
	ctx = ContextWithRequestID(ctx, "req-1")

	userID, ok := UserIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), userID)

	reqID, ok := RequestIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "req-1", reqID)
}

func TestWithContextAttachesRequestFields(t *testing.T) {
	// Without request-scoped values WithContext is the plain logger; with
	// them it must derive a child carrying the fields.
	assert.Same(t, Get(), WithContext(context.Background()))

	ctx := ContextWithRequestID(ContextWithUserID(context.Background(), 42), "req-1")
	assert.NotSame(t, Get(), WithContext(ctx))
}
