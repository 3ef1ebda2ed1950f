package usecase

import (
	"context"
	"errors"

	"github.com/deepakjacob/launchk/internal/domain"
)

// ErrDeclined is returned by Drive when the user answers no to a confirmation.
var ErrDeclined = errors.New("declined")

// Interactor answers the questions a command asks along the way.
type Interactor interface {
	// Prompt returns a domain, plus a session unless domainOnly.
	Prompt(label string, domainOnly bool) (domain.DomainType, domain.SessionType, error)

	// Confirm returns true to proceed.
	Confirm(message string) (bool, error)
}

// Drive runs cmd to completion, answering prompts and confirmations
// through in.
func Drive(ctx context.Context, h domain.CommandHandler, item *domain.ServiceListItem, cmd domain.Command, in Interactor) error {
	for !cmd.IsZero() {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch cmd.Kind {
		case domain.CmdDomainSessionPrompt:
			next, err := AnswerPrompt(cmd, in)
			if err != nil {
				return err
			}
			cmd = next

		case domain.CmdConfirm:
			ok, err := in.Confirm(cmd.Message)
			if err != nil {
				return err
			}
			if !ok {
				return ErrDeclined
			}
			cmd = domain.Chain(cmd.Commands...)

		default:
			next, err := h.Handle(ctx, item, cmd)
			if err != nil {
				return err
			}
			cmd = next
		}
	}
	return nil
}

// AnswerPrompt asks in for a prompt's domain and session and applies the
// prompt's continuation.
func AnswerPrompt(prompt domain.Command, in Interactor) (domain.Command, error) {
	d, s, err := in.Prompt(prompt.Label, prompt.DomainOnly)
	if err != nil {
		return domain.Command{}, err
	}
	return ApplyPrompt(prompt, d, s)
}

// ApplyPrompt turns a prompt and its answers into the command to run next.
func ApplyPrompt(prompt domain.Command, d domain.DomainType, s domain.SessionType) (domain.Command, error) {
	if prompt.DomainOnly {
		s = domain.SessionUnknown
	}
	if d == domain.DomainUnknown {
		return domain.Command{}, domain.NewCommandError("a domain is required", nil)
	}
	cmds, err := prompt.Continuation.Apply(d, s)
	if err != nil {
		return domain.Command{}, err
	}
	return domain.Chain(cmds...), nil
}
