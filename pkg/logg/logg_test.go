package logg_test

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrusLogg_AddPrefixPath(t *testing.T) {
	log := logg.NewNopLogg().WithPrefix("api")

	// Fire
	result := log.AddPrefixPath("webhook")

	assert.Equal(t, "api/webhook", result.Data()["prefix"])
	assert.Equal(t, "api", log.Data()["prefix"])
}

func TestLogrusLogg_WithFieldFlattensNewlines(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Fire
	logg.NewLogrusLogg(logger).WithField("stderr", "line one\nline two").Info("scanner said")

	assert.Contains(t, buf.String(), `line one\\nline two`)
}

func TestLevel_ValuesRoundTrip(t *testing.T) {
	for _, value := range logg.ValidLevelValues() {

		// Fire
		level := logg.NewLevelFromValue(value)

		assert.Equal(t, value, level.Value())
	}
	assert.Equal(t, "warning", logg.Warning.Value())
}

func TestStdoutFileWriter_Write(t *testing.T) {
	dir, err := ioutil.TempDir("", "logg")
	require.NoError(t, err)
	path := filepath.Join(dir, "chainaudit.log")
	writer, err := logg.NewStdoutFileWriter(path)
	require.NoError(t, err)

	// Fire
	_, err = writer.Write([]byte("hello\n"))

	require.NoError(t, err)
	require.NoError(t, writer.Close())
	contents, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(contents))
}
