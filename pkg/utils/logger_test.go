// File: pkg/utils/logger_test.go
package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	require.NoError(t, InitLogger("debug", "json", "stdout", ""))
	before := Logger

	assert.Error(t, InitLogger("shouting", "json", "stdout", ""))
	assert.Same(t, before, Logger, "a failed init keeps the previous logger")
}

func TestInitLoggerWritesToFile(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	path := filepath.Join(t.TempDir(), "engine.log")
	require.NoError(t, InitLogger("info", "json", "file", path))

	GetLogger().Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestComponentLoggerCarriesField(t *testing.T) {
	entry := ComponentLogger("poller")
	assert.Equal(t, logrus.Fields{"component": "poller"}, entry.Data)
}
