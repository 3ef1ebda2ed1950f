package infra

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// DefaultEditor is used when neither the config nor $EDITOR names one.
const DefaultEditor = "vi"

// Editor lets the user edit a file in place and returns when they are done.
type Editor interface {
	Edit(path string) error
}

// ExecEditor runs an external editor attached to the terminal.
// Command may carry arguments, e.g. "code --wait".
type ExecEditor struct {
	Command string
}

// NewExecEditor returns an editor for command, falling back to DefaultEditor.
func NewExecEditor(command string) *ExecEditor {
	if strings.TrimSpace(command) == "" {
		command = DefaultEditor
	}
	return &ExecEditor{Command: command}
}

// Edit blocks until the editor exits.
func (e *ExecEditor) Edit(path string) error {
	argv := strings.Fields(e.Command)
	if len(argv) == 0 {
		return errors.New("no editor configured")
	}
	cmd := exec.Command(argv[0], append(argv[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s failed: %w", argv[0], err)
	}
	return nil
}

// EditorFunc adapts a function to Editor.
type EditorFunc func(path string) error

func (f EditorFunc) Edit(path string) error { return f(path) }
