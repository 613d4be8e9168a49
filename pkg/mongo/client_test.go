package mongo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/examgate/pkg/mongo"
)

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := mongo.New(context.Background(), mongo.Config{})
	require.ErrorIs(t, err, mongo.ErrEmptyConnectionURL)

	_, err = mongo.NewWithDatabase(context.Background(), mongo.Config{Database: "x"})
	require.ErrorIs(t, err, mongo.ErrEmptyConnectionURL)
}
