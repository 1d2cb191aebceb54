package collab_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwops/etl-core/internal/collab"
)

func TestProcessRunCapturesStdoutAndExitCode(t *testing.T) {
	p := collab.NewProcess()
	result, err := p.Run(context.Background(), "/bin/sh", []string{"-c", "echo hello"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestProcessRunReportsNonZeroExit(t *testing.T) {
	p := collab.NewProcess()
	result, err := p.Run(context.Background(), "/bin/sh", []string{"-c", "echo oops 1>&2; exit 3"}, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "oops\n", result.Stderr)
}

func TestProcessRunMissingExecutableErrors(t *testing.T) {
	p := collab.NewProcess()
	_, err := p.Run(context.Background(), "/no/such/executable-ever", nil, t.TempDir())
	require.Error(t, err)
}

func TestProcessRunClosesStdin(t *testing.T) {
	p := collab.NewProcess()
	result, err := p.Run(context.Background(), "/bin/sh", []string{"-c", "cat; echo done"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "done\n", result.Stdout)
}
