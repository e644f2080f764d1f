// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

func TestNewDefaults(t *testing.T) {
	l, err := New(types.LoggingConfig{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(types.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewRejectsBadFormat(t *testing.T) {
	_, err := New(types.LoggingConfig{Format: "xml"})
	assert.Error(t, err)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(types.LoggingConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("phase entered")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"message":"phase entered"`), string(data))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
