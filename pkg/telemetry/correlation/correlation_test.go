package correlation

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	_, err := ulid.Parse(id)
	require.NoError(t, err)

	again, same := Ensure(ctx)
	require.Equal(t, id, same)
	require.Equal(t, id, FromContext(again))
}

func TestWithIDIgnoresEmpty(t *testing.T) {
	ctx := WithID(context.Background(), "")
	require.Empty(t, FromContext(ctx))
	require.Empty(t, FromContext(nil))
}

func TestNewIsUnique(t *testing.T) {
	require.NotEqual(t, New(), New())
}
