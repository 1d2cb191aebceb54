package collab_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwops/etl-core/internal/collab"
)

func TestStepSpanRecordsSuccessAndFailure(t *testing.T) {
	m, err := collab.NewMonitor()
	require.NoError(t, err)

	ctx, finish := m.StepSpan(context.Background(), "order", "public.orders")
	require.NotNil(t, ctx)
	finish(nil)

	_, finishFailed := m.StepSpan(context.Background(), "extract", "public.orders")
	finishFailed(errors.New("boom"))
}

func TestRecordFailureAndBytesDoNotPanic(t *testing.T) {
	m, err := collab.NewMonitor()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.RecordFailure(context.Background(), "s1", "public.orders", true)
		m.RecordBytes(context.Background(), "public.orders", 1024)
	})
}
