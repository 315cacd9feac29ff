package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWithOutput("debug", "json", &buf)
	defer SetupWithOutput("info", "text", &bytes.Buffer{})

	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	Component("tracker").Debug("lookup_issued")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tracker", line["component"])
	assert.Equal(t, "lookup_issued", line["msg"])
}

func TestSetupUnknownLevelFallsBackToInfo(t *testing.T) {
	l := SetupWithOutput("chatty", "text", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
