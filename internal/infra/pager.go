package infra

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/deepakjacob/launchk/internal/domain"
)

// ExecPager pipes text into an external pager such as less(1).
// With no pager configured it writes straight to Out.
type ExecPager struct {
	Command string
	Out     io.Writer
}

// NewExecPager returns a pager for command writing to stdout.
func NewExecPager(command string) *ExecPager {
	return &ExecPager{Command: strings.TrimSpace(command), Out: os.Stdout}
}

// Show displays data under a title line.
func (p *ExecPager) Show(title string, data []byte) error {
	var buf bytes.Buffer
	if title != "" {
		fmt.Fprintf(&buf, "%s\n\n", title)
	}
	buf.Write(data)

	argv := strings.Fields(p.Command)
	if len(argv) == 0 {
		_, err := p.Out.Write(buf.Bytes())
		return err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = &buf
	cmd.Stdout = p.Out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pager %s failed: %w", argv[0], err)
	}
	return nil
}

// Ensure ExecPager implements domain.Pager.
var _ domain.Pager = (*ExecPager)(nil)
