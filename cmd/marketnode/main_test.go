package main

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, newLogger("debug").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("bogus").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("").GetLevel())
}
