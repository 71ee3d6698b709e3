package scan

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
)

var (
	ErrScannerMissing = errors.New("scanner binary not found")
	ErrScannerTimeout = errors.New("scanner timed out")
)

type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runs the scanner against one file on disk
type Runner interface {
	Run(ctx context.Context, path string) (output *Output, err error)
}

// Runs the scanner command as a subprocess with the file path as the last argument
type ExecRunner struct {
	command []string
	log     logg.Logg
}

func NewExecRunner(command []string, log logg.Logg) *ExecRunner {
	return &ExecRunner{command: command, log: log}
}

func (r *ExecRunner) Run(ctx context.Context, path string) (output *Output, err error) {
	if len(r.command) == 0 {
		err = ErrScannerMissing
		return
	}

	args := append(append([]string{}, r.command[1:]...), path)
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	r.log.Debug("running: " + commandString(cmd))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	output = &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if ctx.Err() == context.DeadlineExceeded {
		err = ErrScannerTimeout
		return
	}
	if runErr == nil {
		return
	}
	if errors.Is(runErr, exec.ErrNotFound) {
		err = errors.WithMessage(ErrScannerMissing, runErr.Error())
		return
	}

	// Scanners exit non-zero when they report issues, the output decides
	var exitError *exec.ExitError
	if errors.As(runErr, &exitError) {
		r.log.Debugf("scanner exited with a %d", exitError.ExitCode())
		return
	}

	err = errors.Wrapv(runErr, "unable to run scanner", commandString(cmd))

	return
}

func commandString(cmd *exec.Cmd) string {
	var cmdQuoted []string
	for _, a := range cmd.Args {
		cmdQuoted = append(cmdQuoted, fmt.Sprintf("\"%s\"", a))
	}
	return strings.Join(cmdQuoted, " ")
}
