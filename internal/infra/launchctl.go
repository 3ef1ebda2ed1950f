package infra

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
)

// ErrUnsupportedDomain means launchctl has no target spelling for the domain.
var ErrUnsupportedDomain = errors.New("domain has no launchctl target")

const launchctlBin = "launchctl"

// CommandRunner executes external programs. Swapped out in tests.
type CommandRunner interface {
	// Output runs the command and returns its stdout and stderr.
	Output(name string, args ...string) (stdout, stderr []byte, err error)

	// Stream runs the command with stdout connected to w.
	Stream(w io.Writer, name string, args ...string) error
}

// exitCoder matches *exec.ExitError: the program ran and exited non-zero.
type exitCoder interface {
	error
	ExitCode() int
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output runs the command and captures both output streams.
func (ExecRunner) Output(name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Stream runs the command writing stdout into w.
func (ExecRunner) Stream(w io.Writer, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// LaunchctlTransport implements domain.Transport with launchctl(1).
//
// launchctl has no structured output, so `launchctl print` is parsed into
// the same nested dictionary shape launchd returns over XPC:
// {"service": {...}} for a single job and {"services": {label: {...}}}
// for a domain listing.
type LaunchctlTransport struct {
	runner CommandRunner
	uid    int
	pid    int
	logger *zap.Logger
}

// NewLaunchctlTransport creates a transport addressing the given user's domains.
func NewLaunchctlTransport(runner CommandRunner, uid int, logger *zap.Logger) *LaunchctlTransport {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &LaunchctlTransport{
		runner: runner,
		uid:    uid,
		pid:    os.Getpid(),
		logger: logger,
	}
}

// Target returns the launchctl domain target for d.
func (t *LaunchctlTransport) Target(d domain.DomainType) (string, error) {
	switch d {
	case domain.DomainSystem:
		return "system", nil
	case domain.DomainUser, domain.DomainRequestorUser:
		return fmt.Sprintf("user/%d", t.uid), nil
	case domain.DomainUserLogin:
		return fmt.Sprintf("gui/%d", t.uid), nil
	case domain.DomainPID:
		return fmt.Sprintf("pid/%d", t.pid), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDomain, d)
}

// Domains returns the prompt domains Target can address, in prompt order.
func (t *LaunchctlTransport) Domains() []domain.DomainType {
	var out []domain.DomainType
	for _, d := range domain.PromptDomains() {
		if _, err := t.Target(d); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// impliedSession is the session type a target's jobs run under when
// launchctl does not report one.
func impliedSession(d domain.DomainType) domain.SessionType {
	switch d {
	case domain.DomainSystem:
		return domain.SessionSystem
	case domain.DomainUserLogin:
		return domain.SessionAqua
	case domain.DomainUser, domain.DomainRequestorUser:
		return domain.SessionBackground
	}
	return domain.SessionUnknown
}

// Query prints a job (name != "") or a whole domain (name == "").
func (t *LaunchctlTransport) Query(d domain.DomainType, name string) (domain.Record, error) {
	target, err := t.Target(d)
	if err != nil {
		return nil, &domain.TransportError{Op: "query", Domain: d, Err: err}
	}
	if name != "" {
		target = target + "/" + name
	}

	stdout, stderr, err := t.runner.Output(launchctlBin, "print", target)
	if err != nil {
		var exitErr exitCoder
		if errors.As(err, &exitErr) {
			// launchctl answered, but with a failure (e.g. "Could not find service").
			msg := strings.TrimSpace(string(stderr))
			if msg == "" {
				msg = strings.TrimSpace(string(stdout))
			}
			return domain.Record{domain.ErrorKey: msg}, nil
		}
		return nil, &domain.TransportError{Op: "query", Domain: d, Err: err}
	}

	parsed := ParsePrintOutput(stdout)
	body, ok := firstBlock(parsed)
	if !ok {
		return nil, &domain.TransportError{Op: "query", Domain: d, Err: fmt.Errorf("malformed launchctl output for %s", target)}
	}

	if name == "" {
		services, _ := body.Dict("services")
		if services == nil {
			services = domain.Record{}
		}
		return domain.Record{"services": services}, nil
	}

	// A filled-in session means only jobs outside a named target reach the
	// resolver as SessionUnknown.
	if _, ok := body["LimitLoadToSessionType"]; !ok {
		body["LimitLoadToSessionType"] = string(impliedSession(d))
	}
	return domain.Record{"service": body}, nil
}

// Mutate runs bootstrap/bootout/enable/disable against the domain target.
func (t *LaunchctlTransport) Mutate(m domain.Mutation) error {
	target, err := t.Target(m.Domain)
	if err != nil {
		return &domain.TransportError{Op: string(m.Op), Domain: m.Domain, Err: err}
	}

	var args []string
	switch m.Op {
	case domain.OpLoad:
		if m.PlistPath == "" {
			return &domain.TransportError{Op: string(m.Op), Domain: m.Domain, Err: errors.New("load requires a plist path")}
		}
		if !m.Session.Known() {
			return &domain.TransportError{Op: string(m.Op), Domain: m.Domain, Err: errors.New("load requires a session type")}
		}
		// bootstrap binds the job to the session of the target domain.
		args = []string{"bootstrap", target, m.PlistPath}
	case domain.OpUnload:
		args = []string{"bootout", target + "/" + m.Label}
	case domain.OpEnable:
		args = []string{"enable", target + "/" + m.Label}
	case domain.OpDisable:
		args = []string{"disable", target + "/" + m.Label}
	default:
		return &domain.TransportError{Op: string(m.Op), Domain: m.Domain, Err: fmt.Errorf("unknown operation %q", m.Op)}
	}

	t.logger.Debug("running launchctl",
		zap.Strings("args", args),
		zap.String("session", m.Session.String()))

	stdout, stderr, err := t.runner.Output(launchctlBin, args...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = strings.TrimSpace(string(stdout))
		}
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &domain.TransportError{Op: string(m.Op), Domain: m.Domain, Err: err}
	}
	return nil
}

// StreamProcessInfo writes `launchctl procinfo <pid>` into sink.
func (t *LaunchctlTransport) StreamProcessInfo(pid int64, sink io.Writer) error {
	if err := t.runner.Stream(sink, launchctlBin, "procinfo", fmt.Sprintf("%d", pid)); err != nil {
		return &domain.TransportError{Op: "procinfo", Err: err}
	}
	return nil
}

// Ensure LaunchctlTransport implements domain.Transport.
var _ domain.Transport = (*LaunchctlTransport)(nil)
