package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	t.Parallel()

	t.Run("Should return the stored logger", func(t *testing.T) {
		want := slog.New(slog.NewJSONHandler(io.Discard, nil))

		got := FromContext(WithContext(context.Background(), want))

		assert.Same(t, want, got)
	})

	t.Run("Should fall back to the default logger", func(t *testing.T) {
		assert.Same(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("Should ignore a stored nil logger", func(t *testing.T) {
		ctx := WithContext(context.Background(), nil)
		assert.Same(t, slog.Default(), FromContext(ctx))
	})
}
