package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "json", &buf)
	require.NoError(t, err)

	logger.Debug("work registered", "module", "registry", "work_id", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "DEBUG", line["level"])
	require.Equal(t, "registry", line["module"])
}

func TestNewTextFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("WARN", "text", &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	require.False(t, strings.Contains(buf.String(), "dropped"))
	require.Contains(t, buf.String(), "msg=kept")
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("loud", "json", &bytes.Buffer{})
	require.Error(t, err)

	_, err = New("info", "xml", &bytes.Buffer{})
	require.Error(t, err)
}
