package logg

import (
	"io"
	"io/ioutil"
	"strings"

	lr "github.com/sirupsen/logrus"
)

const prefixFieldName = "prefix"

// Logrus logg implementation
type LogrusLogg struct {
	ent *lr.Entry
}

func NewLogrusLogg(logger *lr.Logger) *LogrusLogg {
	return &LogrusLogg{ent: lr.NewEntry(logger)}
}

// Logger that drops everything, for tests and optional collaborators
func NewNopLogg() *LogrusLogg {
	logger := lr.New()
	logger.SetOutput(ioutil.Discard)
	return NewLogrusLogg(logger)
}

func (l *LogrusLogg) SetOutput(output io.Writer) {
	l.ent.Logger.SetOutput(output)
}

func (l *LogrusLogg) Data() (result Fields) {
	result = make(Fields, len(l.ent.Data))
	for key, value := range l.ent.Data {
		result[key] = value
	}
	return
}

func (l *LogrusLogg) WithPrefix(prefix string) Logg {
	return &LogrusLogg{ent: l.ent.WithField(prefixFieldName, prefix)}
}

// Append to the existing prefix, "api" becomes "api/webhook"
func (l *LogrusLogg) AddPrefixPath(prefix string) Logg {
	var pieces []string
	if prevPrefix, ok := l.ent.Data[prefixFieldName].(string); ok && prevPrefix != "" {
		pieces = append(pieces, prevPrefix)
	}
	pieces = append(pieces, prefix)

	return l.WithPrefix(strings.Join(pieces, "/"))
}

func (l *LogrusLogg) WithError(err error) Logg {
	return &LogrusLogg{ent: l.ent.WithError(err)}
}

func (l *LogrusLogg) WithField(key string, value interface{}) Logg {
	return &LogrusLogg{ent: l.ent.WithField(key, oneLine(value))}
}

func (l *LogrusLogg) WithFields(fields Fields) Logg {
	newFields := make(lr.Fields, len(fields))
	for key, value := range fields {
		newFields[key] = oneLine(value)
	}
	return &LogrusLogg{ent: l.ent.WithFields(newFields)}
}

func (l *LogrusLogg) Debugf(format string, args ...interface{}) {
	l.ent.Debugf(format, args...)
}

func (l *LogrusLogg) Infof(format string, args ...interface{}) {
	l.ent.Infof(format, args...)
}

func (l *LogrusLogg) Warnf(format string, args ...interface{}) {
	l.ent.Warnf(format, args...)
}

func (l *LogrusLogg) Errorf(format string, args ...interface{}) {
	l.ent.Errorf(format, args...)
}

func (l *LogrusLogg) Debug(args ...interface{}) {
	l.ent.Debug(args...)
}

func (l *LogrusLogg) Info(args ...interface{}) {
	l.ent.Info(args...)
}

func (l *LogrusLogg) Warn(args ...interface{}) {
	l.ent.Warn(args...)
}

func (l *LogrusLogg) Error(args ...interface{}) {
	l.ent.Error(args...)
}

// One entry per line, even for multi-line values like scanner stderr or patches
func oneLine(value interface{}) interface{} {
	str, ok := value.(string)
	if !ok {
		return value
	}
	return strings.NewReplacer("\r\n", `\n`, "\n", `\n`).Replace(str)
}
