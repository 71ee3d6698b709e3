package build

import (
	"io"
	"os"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var textFormatter = prefixed.TextFormatter{ForceFormatting: true, FullTimestamp: true}

// Log for the whole app. When logFile is set the output is mirrored there and the returned closer
// must be closed on exit.
func Log(logLevel, logFile string) (result logg.Logg, closer io.Closer, err error) {
	var level logrus.Level
	if level, err = logrus.ParseLevel(logLevel); err != nil {
		err = errors.Wrapv(err, "invalid value for `log-level`", logLevel)
		return
	}

	var output io.Writer = os.Stdout
	if logFile != "" {
		var writer *logg.StdoutFileWriter
		if writer, err = logg.NewStdoutFileWriter(logFile); err != nil {
			err = errors.Wrapv(err, "unable to open log file", logFile)
			return
		}
		output = writer
		closer = writer
	}

	result = newLogger(level, output)

	return
}

func newLogger(logLevel logrus.Level, output io.Writer) (result *logg.LogrusLogg) {
	logrusLogger := logrus.New()
	logrusLogger.SetOutput(output)
	logrusLogger.SetFormatter(&textFormatter)
	logrusLogger.SetLevel(logLevel)

	return logg.NewLogrusLogg(logrusLogger)
}
