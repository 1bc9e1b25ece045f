package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	require.NoError(t, runVersion(versionCmd, nil))

	assert.Contains(t, out.String(), "rxpse v")
	assert.Contains(t, out.String(), "Go version:")
}
