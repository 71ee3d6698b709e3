package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/chainaudit/chainaudit/pkg/logg"
	errorsOrig "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	fieldsFormatter = logrus.TextFormatter{DisableColors: true, DisableTimestamp: true}
	levelFieldRegex = regexp.MustCompile(`\s?level=[^ ]+\s?`)
)

type DoWithErrFunc func(err error)

// Add contextual information to the end of the error string
func Errorv(message string, arg0 interface{}, args ...interface{}) error {
	return errorsOrig.New(messageWithValue(message, arg0, args...))
}

// Like Errorv(), but for WithMessage()
func WithMessagev(err error, message string, arg0 interface{}, args ...interface{}) error {
	return errorsOrig.WithMessage(err, messageWithValue(message, arg0, args...))
}

// Like Errorv(), but for Wrap()
func Wrapv(err error, message string, arg0 interface{}, args ...interface{}) error {
	return errorsOrig.Wrap(err, messageWithValue(message, arg0, args...))
}

func New(message string) error {
	return errorsOrig.New(message)
}

func Errorf(format string, args ...interface{}) error {
	return errorsOrig.Errorf(format, args...)
}

func WithStack(err error) error {
	return errorsOrig.WithStack(err)
}

func Wrap(err error, message string) error {
	return errorsOrig.Wrap(err, message)
}

func Wrapf(err error, message string, args ...interface{}) error {
	return errorsOrig.Wrapf(err, message, args...)
}

func WithMessage(err error, message string) error {
	return errorsOrig.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errorsOrig.WithMessagef(err, format, args...)
}

func Cause(err error) error {
	return errorsOrig.Cause(err)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Decorate logger with the error and its stacktrace
func ErrLog(log logg.Logg, err error) logg.Logg {
	return WithStacktrace(log, err).WithError(err)
}

func LogErrorThenDie(log logg.Logg, err error) {
	ErrLog(log, err).Error("fatal error")
	os.Exit(1)
}

//
// Panic handling

type PanicError struct {
	msg string
}

func (pe PanicError) Error() string {
	return pe.msg
}

func NewPanicError(recovered interface{}) (result PanicError) {
	return PanicError{msg: fmt.Sprintf("panic caught: %v", recovered)}
}

// Catch panic, convert it to an error object, and do something with it
func CatchPanicDo(doFunc DoWithErrFunc) {
	if recovered := recover(); recovered != nil {
		doFunc(WithStack(NewPanicError(recovered)))
	}
}

//
// Stacktraces

func StackTraceString(err error) string {
	buf := bytes.Buffer{}
	for _, f := range StackTrace(err) {
		buf.WriteString(fmt.Sprintf("%+v \n", f))
	}
	return buf.String()
}

// Innermost stacktrace found while climbing the cause chain
func StackTrace(err error) errorsOrig.StackTrace {
	var st errorsOrig.StackTrace
	for err != nil {
		if ster, ok := err.(interface{ StackTrace() errorsOrig.StackTrace }); ok {
			st = ster.StackTrace()
		}
		err = stderrors.Unwrap(err)
	}
	return st
}

func WithStacktrace(log logg.Logg, err error) logg.Logg {
	return log.WithField("stacktrace", StackTraceString(err))
}

func messageWithValue(message string, arg0 interface{}, args ...interface{}) string {
	v := value(arg0, args...)
	if v == "" {
		return message
	}
	return fmt.Sprintf("%s (%v)", message, v)
}

func value(arg0 interface{}, args ...interface{}) string {
	if len(args) > 0 {
		values := make([]string, len(args)+1)
		values[0] = value(arg0)
		for i, arg := range args {
			values[i+1] = value(arg)
		}
		return strings.Join(values, "; ")
	}

	switch v := arg0.(type) {
	case nil:
		return "[nil]"
	case string:
		if v == "" {
			return "[empty string]"
		}
		return v
	case map[string]interface{}:
		return fieldsString(v)
	case logrus.Fields:
		return fieldsString(v)
	case logg.Fields:
		return fieldsString(v)
	case logg.Logg:
		return fieldsString(v.Data())
	}

	return fmt.Sprintf("%+v", arg0)
}

func fieldsString(fields map[string]interface{}) string {
	formatted, err := fieldsFormatter.Format(logrus.WithFields(fields))
	if err != nil {
		return "[unknown var]"
	}
	formatted = levelFieldRegex.ReplaceAll(formatted, []byte(""))

	return strings.TrimSpace(string(formatted))
}
