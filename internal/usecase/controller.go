package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
)

// Controller turns omnibox commands into primitives for the selected job.
//
// Handle returns the follow-up the caller must deal with: a prompt, a
// confirmation, a chain to run, or the zero Command when nothing is left.
type Controller struct {
	store    domain.ConfigStore
	executor *Executor
	surface  domain.Surface
	logger   *zap.Logger
}

// NewController creates a controller. surface may be nil.
func NewController(store domain.ConfigStore, executor *Executor, surface domain.Surface, logger *zap.Logger) *Controller {
	return &Controller{
		store:    store,
		executor: executor,
		surface:  surface,
		logger:   logger,
	}
}

// SetSurface sets the UI cleared after an external editor returns.
func (c *Controller) SetSurface(s domain.Surface) {
	c.surface = s
}

// Handle resolves cmd against selected.
func (c *Controller) Handle(ctx context.Context, selected *domain.ServiceListItem, cmd domain.Command) (domain.Command, error) {
	none := domain.Command{}

	switch cmd.Kind {
	case domain.CmdReload:
		item, err := withPlist(selected)
		if err != nil {
			return none, err
		}
		d, s := item.Status.Domain, item.Status.Session
		if d == domain.DomainUnknown || !s.Known() {
			return domain.Prompt(item.Name, false, domain.ContinueReload), nil
		}
		return domain.Chain(domain.Unload(d), domain.Load(s, d)), nil

	case domain.CmdLoadRequest:
		item, err := withPlist(selected)
		if err != nil {
			return none, err
		}
		return domain.Prompt(item.Name, false, domain.ContinueLoad), nil

	case domain.CmdUnloadRequest:
		item, err := withPlist(selected)
		if err != nil {
			return none, err
		}
		if item.Status.Domain == domain.DomainUnknown {
			return domain.Prompt(item.Name, true, domain.ContinueUnload), nil
		}
		return domain.Unload(item.Status.Domain), nil

	case domain.CmdEnableRequest:
		item, err := withPlist(selected)
		if err != nil {
			return none, err
		}
		// A disabled job is never loaded, so there is no domain to reuse.
		return domain.Prompt(item.Name, true, domain.ContinueEnable), nil

	case domain.CmdDisableRequest:
		item, err := withPlist(selected)
		if err != nil {
			return none, err
		}
		if item.Status.Domain == domain.DomainUnknown {
			return domain.Prompt(item.Name, true, domain.ContinueDisable), nil
		}
		return domain.Chain(domain.Disable(item.Status.Domain)), nil

	case domain.CmdEdit:
		item, err := withPlist(selected)
		if err != nil {
			return none, err
		}
		if err := c.store.EditAndReplace(*item.Status.Plist); err != nil {
			return none, domain.NewCommandError(fmt.Sprintf("edit %s failed", item.Name), err)
		}
		if c.surface != nil {
			c.surface.Clear()
		}
		return domain.Confirm(fmt.Sprintf("Reload %s?", item.Name), domain.Simple(domain.CmdReload)), nil

	case domain.CmdLoad, domain.CmdUnload, domain.CmdEnable, domain.CmdDisable:
		item, err := withPlist(selected)
		if err != nil {
			return none, err
		}
		if cmd.Kind == domain.CmdLoad && !cmd.Session.Known() {
			return none, domain.NewCommandError("load requires a session type", nil)
		}
		return none, c.executor.Execute(ctx, *item, cmd)

	case domain.CmdProcInfo:
		if selected == nil {
			return none, domain.NewCommandError("", domain.ErrNoSelection)
		}
		return none, c.executor.ProcInfo(ctx, *selected)

	case domain.CmdChain:
		return c.chain(ctx, selected, cmd.Commands)
	}

	return none, nil
}

// chain runs members in order and stops at the first failure. A
// non-interactive follow-up runs in place. An interactive one is only
// allowed from the last member, where it becomes the chain's follow-up.
func (c *Controller) chain(ctx context.Context, selected *domain.ServiceListItem, cmds []domain.Command) (domain.Command, error) {
	for i, member := range cmds {
		next, err := c.Handle(ctx, selected, member)
		for err == nil && !next.IsZero() && !next.Interactive() {
			next, err = c.Handle(ctx, selected, next)
		}
		if err != nil {
			c.logger.Debug("chain aborted",
				zap.Int("step", i),
				zap.Stringer("command", member),
				zap.Error(err))
			return domain.Command{}, err
		}
		if next.Interactive() {
			if i != len(cmds)-1 {
				return domain.Command{}, domain.NewCommandError(
					fmt.Sprintf("%s needs input in the middle of a chain", member), nil)
			}
			return next, nil
		}
	}
	return domain.Command{}, nil
}

func withPlist(selected *domain.ServiceListItem) (*domain.ServiceListItem, error) {
	if selected == nil {
		return nil, domain.NewCommandError("", domain.ErrNoSelection)
	}
	if selected.Status.Plist == nil {
		return nil, domain.NewCommandError(selected.Name, domain.ErrNoConfig)
	}
	return selected, nil
}

// Ensure Controller implements domain.CommandHandler.
var _ domain.CommandHandler = (*Controller)(nil)
