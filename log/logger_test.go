package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructLogMessage(t *testing.T) {
	assert.Equal(t, "plain", ConstructLogMessage("plain"))
	assert.Equal(t, "single", ConstructLogMessage("single", "ignored"))

	msg := ConstructLogMessage("Connected block", "height", 10, "hash", "abc")
	assert.True(t, strings.HasPrefix(msg, "Connected block"))
	assert.True(t, strings.HasSuffix(msg, "height=10 hash=abc"))

	odd := ConstructLogMessage("odd", "a", 1, "b")
	assert.Contains(t, odd, "b=MISSING VALUE")
}

func TestLevelFromVerbosity(t *testing.T) {
	assert.Equal(t, logrus.FatalLevel, LevelFromVerbosity(0))
	assert.Equal(t, logrus.ErrorLevel, LevelFromVerbosity(1))
	assert.Equal(t, logrus.WarnLevel, LevelFromVerbosity(2))
	assert.Equal(t, logrus.InfoLevel, LevelFromVerbosity(3))
	assert.Equal(t, logrus.DebugLevel, LevelFromVerbosity(4))
	assert.Equal(t, logrus.TraceLevel, LevelFromVerbosity(9))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Verbosity: 3, Format: "json", Output: &buf})
	require.NoError(t, err)

	l.WithField("module", "rewards").Info("Epoch stored", "height", 43200)
	l.Debug("hidden at info level")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "rewards", record["module"])
	assert.Equal(t, "info", record["level"])
	assert.Contains(t, record["msg"], "height=43200")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)
}
