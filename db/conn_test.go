package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPoolRejectsBadInput(t *testing.T) {
	_, err := NewPool(context.Background(), "", PoolOptions{})
	require.ErrorContains(t, err, "empty connection string")

	_, err = NewPool(context.Background(), "postgres://%zz", PoolOptions{})
	require.ErrorContains(t, err, "parse config")
}
