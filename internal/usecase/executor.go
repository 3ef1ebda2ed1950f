package usecase

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
)

// Executor runs primitive commands against launchd.
type Executor struct {
	transport domain.Transport
	cache     *EntryCache
	journal   domain.Journal
	pipes     domain.PipeFactory
	inspector domain.ProcessInspector
	pager     domain.Pager
	logger    *zap.Logger
}

// ExecutorDeps groups the executor's collaborators. Journal and Inspector
// are optional.
type ExecutorDeps struct {
	Transport domain.Transport
	Cache     *EntryCache
	Journal   domain.Journal
	Pipes     domain.PipeFactory
	Inspector domain.ProcessInspector
	Pager     domain.Pager
}

// NewExecutor creates an executor.
func NewExecutor(deps ExecutorDeps, logger *zap.Logger) *Executor {
	return &Executor{
		transport: deps.Transport,
		cache:     deps.Cache,
		journal:   deps.Journal,
		pipes:     deps.Pipes,
		inspector: deps.Inspector,
		pager:     deps.Pager,
		logger:    logger,
	}
}

// SetPager replaces the pager. The UI swaps in its own once running.
func (e *Executor) SetPager(p domain.Pager) {
	e.pager = p
}

// Execute performs one Load, Unload, Enable or Disable for item. The
// daemon side effect has completed (or failed) when it returns.
func (e *Executor) Execute(ctx context.Context, item domain.ServiceListItem, cmd domain.Command) error {
	m := domain.Mutation{
		Label:  item.Name,
		Domain: cmd.Domain,
	}
	if item.Status.Plist != nil {
		m.PlistPath = item.Status.Plist.PlistPath
	}

	switch cmd.Kind {
	case domain.CmdLoad:
		m.Op = domain.OpLoad
		m.Session = cmd.Session
	case domain.CmdUnload:
		m.Op = domain.OpUnload
		m.Session = item.Status.Session
	case domain.CmdEnable:
		m.Op = domain.OpEnable
	case domain.CmdDisable:
		m.Op = domain.OpDisable
	default:
		return domain.NewCommandError(fmt.Sprintf("%s is not a primitive", cmd), nil)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err := e.transport.Mutate(m)
	e.record(m, cmd, err)

	if err != nil {
		e.logger.Warn("mutation failed",
			zap.String("label", m.Label),
			zap.String("op", string(m.Op)),
			zap.Stringer("domain", m.Domain),
			zap.Error(err))
		return domain.NewCommandError(fmt.Sprintf("%s %s failed", m.Op, m.Label), err)
	}

	e.logger.Info("mutation succeeded",
		zap.String("label", m.Label),
		zap.String("op", string(m.Op)),
		zap.Stringer("domain", m.Domain),
		zap.Stringer("session", m.Session))

	e.cache.Invalidate(m.Label)
	return nil
}

// record is best-effort; a journal failure never fails the mutation.
func (e *Executor) record(m domain.Mutation, cmd domain.Command, err error) {
	if e.journal == nil {
		return
	}
	rec := domain.MutationRecord{
		Label:     m.Label,
		Operation: m.Op,
		Domain:    m.Domain,
		Session:   m.Session,
		Succeeded: err == nil,
		Command:   cmd,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jerr := e.journal.Record(rec); jerr != nil {
		e.logger.Warn("failed to journal mutation",
			zap.String("label", m.Label),
			zap.Error(jerr))
	}
}

type readResult struct {
	data []byte
	err  error
}

// ProcInfo streams launchd's process dump for item through a private pipe
// drained by one reader goroutine, then shows it in the pager.
func (e *Executor) ProcInfo(ctx context.Context, item domain.ServiceListItem) error {
	pid := item.Status.PID()
	if pid == 0 {
		return domain.NewCommandError(fmt.Sprintf("No PID for %s", item.Name), nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pipe, err := e.pipes.NewPipe()
	if err != nil {
		return domain.NewCommandError("failed to create procinfo channel", err)
	}
	defer pipe.Remove()

	done := make(chan readResult, 1)
	go func() {
		defer close(done)
		data, err := io.ReadAll(pipe.Reader())
		done <- readResult{data: data, err: err}
	}()

	streamErr := e.transport.StreamProcessInfo(pid, pipe.Writer())
	closeErr := pipe.Writer().Close()

	res, ok := <-done
	if !ok {
		panic("procinfo reader exited without a result")
	}

	if streamErr != nil {
		return domain.NewCommandError(fmt.Sprintf("procinfo %d failed", pid), streamErr)
	}
	if closeErr != nil {
		return domain.NewCommandError("failed to close procinfo channel", closeErr)
	}
	if res.err != nil {
		return domain.NewCommandError("failed to read procinfo", res.err)
	}

	out := res.data
	if e.inspector != nil {
		if header, err := e.inspector.Describe(pid); err == nil {
			out = append([]byte(header+"\n\n"), out...)
		} else {
			e.logger.Debug("process inspection failed", zap.Int64("pid", pid), zap.Error(err))
		}
	}

	if err := e.pager.Show(fmt.Sprintf("procinfo %s (pid %d)", item.Name, pid), out); err != nil {
		return domain.NewCommandError("failed to show procinfo", err)
	}
	return nil
}
