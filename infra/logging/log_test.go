package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNamedNests(t *testing.T) {
	log := NewTestLogger()
	child := log.Named("engine").Named("BTCUSD")
	assert.Equal(t, "engine.BTCUSD", child.GetName())
}

func TestRejectsUnknownLevel(t *testing.T) {
	_, err := NewLoggerFromConfig(Config{Environment: "prod", Level: "loud"})
	require.Error(t, err)
}

func TestFileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	cfg := NewDefaultConfig()
	cfg.Environment = "prod"
	cfg.File = path

	log, err := NewLoggerFromConfig(cfg)
	require.NoError(t, err)
	log.Info("started", zap.String("market", "BTCUSD"))
	log.AtExit()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"market":"BTCUSD"`)
}
