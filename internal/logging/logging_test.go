package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "DEBUG", "text")
	require.Equal(t, logrus.DebugLevel, l.GetLevel())
	require.Empty(t, buf.String())
}

func TestNewUnknownLevelFallsBack(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "chatty", "json")
	require.Equal(t, logrus.InfoLevel, l.GetLevel())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "chatty", entry["log_level"])
	require.Equal(t, "warning", entry["level"])
}
