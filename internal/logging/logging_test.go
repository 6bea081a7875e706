package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithOutput(&buf, "debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("frame", 3).Debug("stepped")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "stepped", line["msg"])
	assert.EqualValues(t, 3, line["frame"])
}

func TestNew_Fallbacks(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithOutput(&buf, "loud", "text")
	assert.Error(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	l, err = NewWithOutput(&buf, "", "xml")
	assert.Error(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)

	l.Debug("hidden")
	assert.Zero(t, buf.Len())
}
