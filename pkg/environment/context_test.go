package environment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/examgate/pkg/environment"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want environment.Environment
	}{
		{"production", environment.Production},
		{"prod", environment.Production},
		{" PROD ", environment.Production},
		{"stage", environment.Staging},
		{"staging", environment.Staging},
		{"dev", environment.Development},
		{"", environment.Development},
		{"qa", environment.Development},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, environment.Parse(tt.in))
		})
	}
}

func TestContext(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		ctx := environment.WithContext(context.Background(), environment.Production)
		assert.Equal(t, environment.Production, environment.FromContext(ctx))
		assert.True(t, environment.FromContext(ctx).IsProduction())
	})

	t.Run("missing value defaults to development", func(t *testing.T) {
		t.Parallel()
		env := environment.FromContext(context.Background())
		assert.Equal(t, environment.Development, env)
		assert.True(t, env.IsDevelopment())
	})
}
