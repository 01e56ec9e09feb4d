// internal/logger/logger_test.go
package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesToConfiguredFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "engine.log")

	log, err := New(cfg)
	require.NoError(t, err)

	log.Info("startup")
	require.NoError(t, log.Sync())

	assert.FileExists(t, cfg.LogFile)
}

func TestOperationStampsCorrelationID(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	base := zap.New(core)

	Operation(base, "pair_evaluation").Info("gate passed")
	Operation(base, "pair_evaluation").Info("gate passed")

	entries := recorded.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	second := entries[1].ContextMap()
	assert.Equal(t, "pair_evaluation", first["operation"])
	assert.NotEmpty(t, first["correlation_id"])
	// Each operation gets its own id.
	assert.NotEqual(t, first["correlation_id"], second["correlation_id"])
}
