package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("RAG_SCORE_THRESHOLD", "0.3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.RetrievalTopK)
	assert.Equal(t, 4000, cfg.ContextCharBudget)
	assert.Equal(t, 20, cfg.DailyMessageLimit)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSizeBytes)
	assert.Equal(t, 5*time.Second, cfg.OCRPollInitial)
	assert.Equal(t, 30*time.Second, cfg.OCRPollMax)
	assert.Equal(t, 15, cfg.OCRPollAttempts)
	assert.InDelta(t, 0.3, cfg.ScoreThreshold, 1e-9)
	assert.True(t, cfg.IsAllowedExtension("PDF"))
	assert.False(t, cfg.IsAllowedExtension("exe"))
}

func TestLoadConfig_ThresholdRequired(t *testing.T) {
	t.Setenv("RAG_SCORE_THRESHOLD", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAG_SCORE_THRESHOLD")
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("RAG_SCORE_THRESHOLD", "0.5")
	t.Setenv("ALLOWED_EXTENSIONS", ".TXT, md ,html")
	t.Setenv("OCR_POLL_INITIAL", "2")
	t.Setenv("PRESIGN_TTL", "90s")
	t.Setenv("STORE_BACKEND", "SQLite")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"txt", "md", "html"}, cfg.AllowedExtensions)
	assert.Equal(t, 2*time.Second, cfg.OCRPollInitial)
	assert.Equal(t, 90*time.Second, cfg.PresignTTL)
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "html, md, txt", cfg.AllowedExtensionsString())
}

func TestValidate(t *testing.T) {
	t.Setenv("RAG_SCORE_THRESHOLD", "0.3")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.ChunkOverlap = cfg.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg.ChunkOverlap = 100
	cfg.ChunkBackend = ChunkBackendPostgres
	cfg.DatabaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg.ChunkBackend = ChunkBackendKV
	cfg.QuotaBackend = "memcached"
	assert.Error(t, cfg.Validate())

	cfg.QuotaBackend = QuotaBackendKV
	assert.NoError(t, cfg.Validate())
}
