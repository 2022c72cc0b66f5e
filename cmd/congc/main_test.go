//go:build unix

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDemoRunsEndToEnd(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--cells=32", "--drop=16"})
	require.NoError(t, cmd.Execute())
}
