package infra

import (
	"fmt"
	"io"
	"strings"
)

// fakeExitError mimics *exec.ExitError for runners that never exec.
type fakeExitError struct {
	code int
}

func (e *fakeExitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *fakeExitError) ExitCode() int { return e.code }

// fakeResult is one canned command outcome.
type fakeResult struct {
	stdout string
	stderr string
	err    error
}

// fakeRunner is a test double for CommandRunner keyed by the joined argv.
type fakeRunner struct {
	results map[string]fakeResult
	calls   []string
	stream  string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: make(map[string]fakeResult)}
}

func (r *fakeRunner) on(argv string, res fakeResult) {
	r.results[argv] = res
}

func (r *fakeRunner) Output(name string, args ...string) ([]byte, []byte, error) {
	argv := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, argv)
	res, ok := r.results[argv]
	if !ok {
		return nil, []byte("Could not find service"), &fakeExitError{code: 113}
	}
	return []byte(res.stdout), []byte(res.stderr), res.err
}

func (r *fakeRunner) Stream(w io.Writer, name string, args ...string) error {
	argv := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, argv)
	if res, ok := r.results[argv]; ok && res.err != nil {
		return res.err
	}
	_, err := io.WriteString(w, r.stream)
	return err
}
