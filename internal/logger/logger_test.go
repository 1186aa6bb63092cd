package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutsideLocal(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	log := NewWithOutput(&buf)
	log.Component("feed").WithError(errors.New("boom")).Debug("tick failed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "feed", line["component"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "debug", line["level"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "chatty")

	var buf bytes.Buffer
	log := NewWithOutput(&buf)
	log.Debug("hidden")
	assert.Zero(t, buf.Len())
}

func TestWithRequest_KeepsCallerRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "/session", nil)
	req.Header.Set(RequestIDHeader, "abc-123")

	entry := NewWithOutput(&bytes.Buffer{}).WithRequest(req)
	assert.Equal(t, "abc-123", entry.Data["req_id"])
	assert.Equal(t, "/session", entry.Data["path"])

	minted := NewWithOutput(&bytes.Buffer{}).WithRequest(httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, minted.Data["req_id"])
}
