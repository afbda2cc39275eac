package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	logger, closer, err := New(Config{})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, log.InfoLevel, logger.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, logger.Formatter)
}

func TestNew_JSONToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crowngate.log")
	logger, closer, err := New(Config{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	Component(logger, "order-store").WithField("orders", 5).Debug("order store initialized")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"component":"order-store"`)
	assert.Contains(t, line, `"msg":"order store initialized"`)
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	require.Error(t, err)

	_, _, err = New(Config{Format: "xml"})
	require.Error(t, err)
}
