package storage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/semdex/retry"
)

func TestApplyOptions_RetryInheritsLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := ApplyOptions(WithLogger(logger), WithRetry(retry.Config{MaxAttempts: 2}))
	assert.Same(t, logger, o.Retry.Logger)
	assert.NotNil(t, o.Retry.Retryable)

	own := slog.New(slog.NewTextHandler(io.Discard, nil))
	o = ApplyOptions(WithLogger(logger), WithRetry(retry.Config{MaxAttempts: 2, Logger: own}))
	assert.Same(t, own, o.Retry.Logger)
}
