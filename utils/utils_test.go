package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleErrors(t *testing.T) {
	t.Run("Fatal error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errorChan := make(chan error, 1)
		errorChan <- errors.New("DB error")

		assert.Equal(t, 1, HandleErrors(ctx, cancel, errorChan))
		assert.Error(t, ctx.Err())
	})

	t.Run("Context done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Equal(t, 0, HandleErrors(ctx, cancel, make(chan error)))
	})
}
