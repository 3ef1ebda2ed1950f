package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/deepakjacob/launchk/internal/domain"
)

// ProcessInspectorImpl implements domain.ProcessInspector using gopsutil.
type ProcessInspectorImpl struct{}

// NewProcessInspector creates a new process inspector.
func NewProcessInspector() domain.ProcessInspector {
	return &ProcessInspectorImpl{}
}

// Describe returns a short summary of a running process. Fields the
// caller is not allowed to read are left out.
func (pi *ProcessInspectorImpl) Describe(pid int64) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("failed to inspect pid %d: %w", pid, err)
	}

	var lines []string

	head := fmt.Sprintf("pid %d", pid)
	if name, err := p.Name(); err == nil {
		head += "  name " + name
	}
	if user, err := p.Username(); err == nil {
		head += "  user " + user
	}
	if ppid, err := p.Ppid(); err == nil {
		head += fmt.Sprintf("  ppid %d", ppid)
	}
	lines = append(lines, head)

	if cmdline, err := p.Cmdline(); err == nil && cmdline != "" {
		lines = append(lines, "command: "+cmdline)
	}

	var stats []string
	if created, err := p.CreateTime(); err == nil {
		stats = append(stats, "started "+time.UnixMilli(created).Format(time.DateTime))
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats = append(stats, fmt.Sprintf("rss %.1f MiB", float64(mem.RSS)/(1<<20)))
	}
	if n, err := p.NumThreads(); err == nil {
		stats = append(stats, fmt.Sprintf("threads %d", n))
	}
	if len(stats) > 0 {
		lines = append(lines, strings.Join(stats, "  "))
	}

	return strings.Join(lines, "\n"), nil
}

// Ensure ProcessInspectorImpl implements domain.ProcessInspector.
var _ domain.ProcessInspector = (*ProcessInspectorImpl)(nil)
