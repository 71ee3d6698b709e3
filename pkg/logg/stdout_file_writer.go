package logg

import (
	"io"
	"os"
	"sync"
)

// Writes log output to stdout and appends it to a file
type StdoutFileWriter struct {
	logFilePath string
	logFile     *os.File
	stdout      io.Writer
	mutex       sync.Mutex
}

func NewStdoutFileWriter(logFilePath string) (result *StdoutFileWriter, err error) {
	result = &StdoutFileWriter{logFilePath: logFilePath, stdout: os.Stdout}
	result.logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	return
}

func (l *StdoutFileWriter) Write(p []byte) (n int, err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return io.MultiWriter(l.logFile, l.stdout).Write(p)
}

func (l *StdoutFileWriter) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.logFile.Close()
}
