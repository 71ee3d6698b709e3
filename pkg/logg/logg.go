package logg

import (
	"io"
)

type (

	// Structured logger handed to every component. The "prefix" field names the component,
	// nested components join with a slash ("api/webhook").
	Logg interface {
		Contextual
		Leveled
		Data() Fields
		SetOutput(output io.Writer)
	}

	Contextual interface {
		WithField(key string, value interface{}) Logg
		WithFields(fields Fields) Logg
		WithError(err error) Logg
		WithPrefix(prefix string) Logg
		AddPrefixPath(prefix string) Logg
	}

	Leveled interface {
		Debugf(format string, args ...interface{})
		Infof(format string, args ...interface{})
		Warnf(format string, args ...interface{})
		Errorf(format string, args ...interface{})
		Debug(args ...interface{})
		Info(args ...interface{})
		Warn(args ...interface{})
		Error(args ...interface{})
	}

	Fields map[string]interface{}
)
