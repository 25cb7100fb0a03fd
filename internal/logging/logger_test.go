package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("loud")
	assert.Error(t, err)

	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger.WithOperation(context.Background()))
}

func TestWithOperationIDIsStable(t *testing.T) {
	ctx := WithOperationID(context.Background())
	id, ok := OperationID(ctx)
	require.True(t, ok)
	assert.NotEmpty(t, id)

	again := WithOperationID(ctx)
	id2, _ := OperationID(again)
	assert.Equal(t, id, id2)

	_, ok = OperationID(context.Background())
	assert.False(t, ok)
}
