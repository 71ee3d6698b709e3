package scan

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/hako/durafmt"
)

const (
	NoteNonMatching   = "non-matching file type"
	NoteEmptyContent  = "empty content"
	NoteMissing       = "scanner not installed"
	NoteTimeout       = "scanner timed out"
	NoteNotJSON       = "scanner output is not JSON"
	NoteEmptyJSON     = "scanner returned an empty JSON object"
	NoteNoOutput      = "scanner produced no output"
	NoteStderr        = "scanner reported errors and no findings"
	NoteFailed        = "scanner failed"
	NoteClean         = "no issues found"
	NoteFindingsFound = "issues found"

	DefaultTimeout = 60 * time.Second
)

type Result struct {
	IsVulnerable bool       `json:"isVulnerable"`
	Findings     []*Finding `json:"findings"`
	Note         string     `json:"note"`
}

// Scans file contents in a single language. Every failure of the scanner itself
// yields a not-vulnerable result with a note, a broken scanner never blocks ingestion.
type Scanner struct {
	runner    Runner
	extension string
	timeout   time.Duration
	log       logg.Logg
}

func NewScanner(runner Runner, extension string, timeout time.Duration, log logg.Logg) *Scanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return &Scanner{runner: runner, extension: strings.ToLower(extension), timeout: timeout, log: log}
}

func (s *Scanner) Extension() string {
	return s.extension
}

func (s *Scanner) ScanFile(ctx context.Context, name, content string) (result *Result) {
	log := s.log.WithField("file", name)

	if !strings.HasSuffix(strings.ToLower(name), s.extension) {
		return notVulnerable(NoteNonMatching)
	}
	if strings.TrimSpace(content) == "" {
		return notVulnerable(NoteEmptyContent)
	}

	start := time.Now()
	defer func() {
		log.WithField("duration", durafmt.Parse(time.Since(start)).String()).
			WithField("vulnerable", result.IsVulnerable).
			Debug(result.Note)
	}()

	path, err := writeTempFile(content, s.extension)
	if err != nil {
		errors.ErrLog(log, err).Warn("unable to stage file for scanning")
		return notVulnerable(NoteFailed)
	}
	defer os.Remove(path)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	output, err := s.runner.Run(runCtx, path)
	if err != nil {
		switch {
		case errors.Is(err, ErrScannerMissing):
			log.WithError(err).Warn(NoteMissing)
			return notVulnerable(NoteMissing)
		case errors.Is(err, ErrScannerTimeout):
			log.WithField("timeout", durafmt.Parse(s.timeout).String()).Warn(NoteTimeout)
			return notVulnerable(NoteTimeout)
		default:
			errors.ErrLog(log, err).Warn(NoteFailed)
			return notVulnerable(NoteFailed)
		}
	}

	return s.interpret(log, output)
}

func (s *Scanner) interpret(log logg.Logg, output *Output) *Result {
	stderr := string(bytes.TrimSpace(output.Stderr))

	if len(bytes.TrimSpace(output.Stdout)) == 0 {
		if stderr != "" {
			log.WithField("stderr", stderr).Warn(NoteStderr)
			return notVulnerable(NoteStderr)
		}
		log.Warn(NoteNoOutput)
		return notVulnerable(NoteNoOutput)
	}

	findings, empty, err := normalize(output.Stdout)
	switch {
	case err != nil:
		log.WithError(err).WithField("stderr", stderr).Warn(NoteNotJSON)
		return notVulnerable(NoteNotJSON)
	case empty:
		log.Warn(NoteEmptyJSON)
		return notVulnerable(NoteEmptyJSON)
	case len(findings) > 0:
		return &Result{IsVulnerable: true, Findings: findings, Note: NoteFindingsFound}
	case stderr != "":
		log.WithField("stderr", stderr).Warn(NoteStderr)
		return notVulnerable(NoteStderr)
	}

	return notVulnerable(NoteClean)
}

func notVulnerable(note string) *Result {
	return &Result{Findings: []*Finding{}, Note: note}
}

func writeTempFile(content, extension string) (path string, err error) {
	var file *os.File
	if file, err = ioutil.TempFile("", "chainaudit-scan-*"+extension); err != nil {
		err = errors.Wrap(err, "unable to create temp file")
		return
	}
	path = filepath.Clean(file.Name())

	if _, err = file.WriteString(content); err != nil {
		file.Close()
		os.Remove(path)
		err = errors.Wrapv(err, "unable to write temp file", path)
		return
	}
	if err = file.Close(); err != nil {
		os.Remove(path)
		err = errors.Wrapv(err, "unable to close temp file", path)
	}

	return
}
