package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs(t *testing.T) {
	l := NewNop()

	out := l.sanitizeKVs([]interface{}{"api_key", "abc", "bucket", "vault", "dangling"})
	assert.Equal(t, []interface{}{"api_key", "[REDACTED]", "bucket", "vault", "dangling"}, out)
}

func TestSanitizeKVs_HashesUserIDWhenSalted(t *testing.T) {
	l := &Logger{SugaredLogger: NewNop().SugaredLogger, hashSalt: "pepper"}

	out := l.sanitizeKVs([]interface{}{"user_id", "u-123"})
	hashed, ok := out[1].(string)
	assert.True(t, ok)
	assert.Contains(t, hashed, "hash:")
	assert.NotContains(t, hashed, "u-123")

	again := l.sanitizeKVs([]interface{}{"user_id", "u-123"})
	assert.Equal(t, out, again)
}

func TestSanitizeKVs_KeepsUserIDWithoutSalt(t *testing.T) {
	l := NewNop()
	out := l.sanitizeKVs([]interface{}{"user_id", "u-123"})
	assert.Equal(t, "u-123", out[1])
}
