package etlerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dwops/etl-core/internal/etlerrors"
)

func TestWrapPreservesSentinel(t *testing.T) {
	err := etlerrors.Wrap("extract public.orders", etlerrors.ErrSqoopExecution)
	assert.ErrorIs(t, err, etlerrors.ErrSqoopExecution)
	assert.Contains(t, err.Error(), "extract public.orders")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, etlerrors.Wrap("op", nil))
}

func TestWrapfFormatsOperation(t *testing.T) {
	err := etlerrors.Wrapf(etlerrors.ErrDesignUnavailable, "relation %q", "public.orders")
	assert.ErrorIs(t, err, etlerrors.ErrDesignUnavailable)
	assert.Contains(t, err.Error(), `relation "public.orders"`)
}

func TestRuntimeWrapsAndIsRuntimeDetects(t *testing.T) {
	base := errors.New("sqoop exited 1")
	err := etlerrors.Runtime(base)
	assert.True(t, etlerrors.IsRuntime(err))
	assert.ErrorIs(t, err, base)
}

func TestIsRuntimeFalseForUnwrappedError(t *testing.T) {
	assert.False(t, etlerrors.IsRuntime(errors.New("not wrapped")))
}

func TestRuntimeNilReturnsNil(t *testing.T) {
	assert.NoError(t, etlerrors.Runtime(nil))
}
