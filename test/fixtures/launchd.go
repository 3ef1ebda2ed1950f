// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"howett.net/plist"

	"github.com/deepakjacob/launchk/internal/infra"
)

// ExitError mimics *exec.ExitError: launchctl ran and failed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }
func (e *ExitError) ExitCode() int { return e.Code }

// FakeLaunchd is an in-memory launchd behind a launchctl-shaped
// CommandRunner. It understands print, bootstrap, bootout, enable,
// disable and procinfo, and answers in launchctl's text format.
type FakeLaunchd struct {
	UID int

	mu       sync.Mutex
	jobs     map[string]map[string]int64 // domain target -> label -> pid
	disabled map[string]bool             // "target/label"
	failures map[string]string           // verb -> stderr for the next call
	calls    []string
	nextPID  int64
}

// NewFakeLaunchd returns an empty launchd for uid.
func NewFakeLaunchd(uid int) *FakeLaunchd {
	return &FakeLaunchd{
		UID:      uid,
		jobs:     make(map[string]map[string]int64),
		disabled: make(map[string]bool),
		failures: make(map[string]string),
		// Above any pid_max so process lookups never hit a real process.
		nextPID: 9_000_000,
	}
}

// Preload marks label as running in target (e.g. "gui/501").
func (f *FakeLaunchd) Preload(target, label string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.start(target, label)
}

// FailNext makes the next call of verb fail with stderr.
func (f *FakeLaunchd) FailNext(verb, stderr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[verb] = stderr
}

// Loaded reports whether label is running in target.
func (f *FakeLaunchd) Loaded(target, label string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[target][label]
	return ok
}

// Disabled reports the override for label in target.
func (f *FakeLaunchd) Disabled(target, label string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabled[target+"/"+label]
}

// Mutations returns every non-print call in order.
func (f *FakeLaunchd) Mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if !strings.HasPrefix(c, "print ") {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeLaunchd) start(target, label string) int64 {
	if f.jobs[target] == nil {
		f.jobs[target] = make(map[string]int64)
	}
	f.nextPID++
	f.jobs[target][label] = f.nextPID
	return f.nextPID
}

func (f *FakeLaunchd) domains() []string {
	return []string{
		"system",
		fmt.Sprintf("user/%d", f.UID),
		fmt.Sprintf("gui/%d", f.UID),
	}
}

// splitTarget separates "gui/501/com.example" into domain and label.
func (f *FakeLaunchd) splitTarget(target string) (string, string, bool) {
	for _, d := range f.domains() {
		if target == d {
			return d, "", true
		}
		if strings.HasPrefix(target, d+"/") {
			return d, strings.TrimPrefix(target, d+"/"), true
		}
	}
	return "", "", false
}

// Output implements infra.CommandRunner.
func (f *FakeLaunchd) Output(name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, strings.Join(args, " "))
	if name != "launchctl" || len(args) == 0 {
		return nil, []byte("unknown command"), &ExitError{Code: 1}
	}
	verb := args[0]
	if msg, ok := f.failures[verb]; ok {
		delete(f.failures, verb)
		return nil, []byte(msg), &ExitError{Code: 5}
	}

	switch verb {
	case "print":
		return f.print(args[1:])
	case "bootstrap":
		return f.bootstrap(args[1:])
	case "bootout":
		return f.bootout(args[1:])
	case "enable", "disable":
		if len(args) != 2 {
			return nil, []byte("Usage: launchctl " + verb + " <service-target>"), &ExitError{Code: 64}
		}
		f.disabled[args[1]] = verb == "disable"
		return nil, nil, nil
	}
	return nil, []byte("Unrecognized subcommand: " + verb), &ExitError{Code: 64}
}

// Stream implements infra.CommandRunner for procinfo.
func (f *FakeLaunchd) Stream(w io.Writer, name string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, strings.Join(args, " "))
	f.mu.Unlock()

	if len(args) != 2 || args[0] != "procinfo" {
		return &ExitError{Code: 64}
	}
	_, err := fmt.Fprintf(w, "program path = /usr/local/bin/fake\npid = %s\nresponsible pid = %s\n", args[1], args[1])
	return err
}

func (f *FakeLaunchd) print(args []string) ([]byte, []byte, error) {
	if len(args) != 1 {
		return nil, []byte("Usage: launchctl print <domain-target | service-target>"), &ExitError{Code: 64}
	}
	d, label, ok := f.splitTarget(args[0])
	if !ok {
		return nil, []byte("Unrecognized target specifier."), &ExitError{Code: 113}
	}

	var b strings.Builder
	if label == "" {
		fmt.Fprintf(&b, "%s = {\n\ttype = %s\n\n\tservices = {\n", d, strings.Split(d, "/")[0])
		labels := make([]string, 0, len(f.jobs[d]))
		for l := range f.jobs[d] {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Fprintf(&b, "\t\t%8d      0     %s\n", f.jobs[d][l], l)
		}
		b.WriteString("\t}\n}\n")
		return []byte(b.String()), nil, nil
	}

	pid, loaded := f.jobs[d][label]
	if !loaded {
		return nil, []byte(fmt.Sprintf("Could not find service \"%s\" in domain for port", label)), &ExitError{Code: 113}
	}
	fmt.Fprintf(&b, "%s = {\n\tactive count = 1\n\tstate = running\n\n\tpid = %d\n}\n", args[0], pid)
	return []byte(b.String()), nil, nil
}

func (f *FakeLaunchd) bootstrap(args []string) ([]byte, []byte, error) {
	if len(args) != 2 {
		return nil, []byte("Usage: launchctl bootstrap <domain-target> <path>"), &ExitError{Code: 64}
	}
	d, label, ok := f.splitTarget(args[0])
	if !ok || label != "" {
		return nil, []byte("Unrecognized target specifier."), &ExitError{Code: 113}
	}
	label, err := plistLabel(args[1])
	if err != nil {
		return nil, []byte("Bootstrap failed: 5: Input/output error"), &ExitError{Code: 5}
	}
	if _, loaded := f.jobs[d][label]; loaded {
		return nil, []byte("Bootstrap failed: 37: Operation already in progress"), &ExitError{Code: 37}
	}
	f.start(d, label)
	return nil, nil, nil
}

func (f *FakeLaunchd) bootout(args []string) ([]byte, []byte, error) {
	if len(args) != 1 {
		return nil, []byte("Usage: launchctl bootout <service-target>"), &ExitError{Code: 64}
	}
	d, label, ok := f.splitTarget(args[0])
	if !ok || label == "" {
		return nil, []byte("Unrecognized target specifier."), &ExitError{Code: 113}
	}
	if _, loaded := f.jobs[d][label]; !loaded {
		return nil, []byte("Boot-out failed: 3: No such process"), &ExitError{Code: 3}
	}
	delete(f.jobs[d], label)
	return nil, nil, nil
}

func plistLabel(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc struct {
		Label string `plist:"Label"`
	}
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	if doc.Label == "" {
		return "", fmt.Errorf("%s has no Label", filepath.Base(path))
	}
	return doc.Label, nil
}

// Ensure FakeLaunchd implements infra.CommandRunner.
var _ infra.CommandRunner = (*FakeLaunchd)(nil)
