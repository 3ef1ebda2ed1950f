package domain

import (
	"fmt"
	"strings"
)

// CommandKind tags the variant held by a Command.
type CommandKind uint8

const (
	// CmdNone is the zero value: "no follow-up".
	CmdNone CommandKind = iota
	CmdLoadRequest
	CmdUnloadRequest
	CmdEnableRequest
	CmdDisableRequest
	CmdLoad
	CmdUnload
	CmdReload
	CmdEnable
	CmdDisable
	CmdEdit
	CmdProcInfo
	CmdFocusServiceList
	CmdQuit
	CmdChain
	CmdConfirm
	CmdDomainSessionPrompt
)

var commandKindNames = map[CommandKind]string{
	CmdNone:                "none",
	CmdLoadRequest:         "loadrequest",
	CmdUnloadRequest:       "unloadrequest",
	CmdEnableRequest:       "enablerequest",
	CmdDisableRequest:      "disablerequest",
	CmdLoad:                "load",
	CmdUnload:              "unload",
	CmdReload:              "reload",
	CmdEnable:              "enable",
	CmdDisable:             "disable",
	CmdEdit:                "edit",
	CmdProcInfo:            "procinfo",
	CmdFocusServiceList:    "focusservicelist",
	CmdQuit:                "quit",
	CmdChain:               "chain",
	CmdConfirm:             "confirm",
	CmdDomainSessionPrompt: "domainsessionprompt",
}

func (k CommandKind) String() string {
	if n, ok := commandKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", uint8(k))
}

// Continuation is the follow-up shape of a DomainSessionPrompt. It is a
// closed set rather than a closure so commands stay comparable and
// serialisable.
type Continuation uint8

const (
	ContinueNone Continuation = iota
	ContinueLoad
	ContinueUnload
	ContinueReload
	ContinueEnable
	ContinueDisable
)

func (c Continuation) String() string {
	switch c {
	case ContinueLoad:
		return "load"
	case ContinueUnload:
		return "unload"
	case ContinueReload:
		return "reload"
	case ContinueEnable:
		return "enable"
	case ContinueDisable:
		return "disable"
	default:
		return "none"
	}
}

// Apply builds the follow-up commands from the prompt answers. session is
// SessionUnknown when the prompt only collected a domain.
func (c Continuation) Apply(d DomainType, session SessionType) ([]Command, error) {
	needSession := func() error {
		if !session.Known() {
			return NewCommandError(fmt.Sprintf("%s requires a session type", c), nil)
		}
		return nil
	}

	switch c {
	case ContinueLoad:
		if err := needSession(); err != nil {
			return nil, err
		}
		return []Command{Load(session, d)}, nil
	case ContinueUnload:
		return []Command{Unload(d)}, nil
	case ContinueReload:
		if err := needSession(); err != nil {
			return nil, err
		}
		return []Command{Unload(d), Load(session, d)}, nil
	case ContinueEnable:
		return []Command{Enable(d)}, nil
	case ContinueDisable:
		return []Command{Disable(d)}, nil
	}
	return nil, NewCommandError("prompt has no continuation", nil)
}

// Command is a user intent, possibly still needing disambiguation.
// Only the fields relevant to Kind are set.
type Command struct {
	Kind         CommandKind  `cbor:"kind"`
	Session      SessionType  `cbor:"session,omitempty"`
	Domain       DomainType   `cbor:"domain,omitempty"`
	Handle       *uint64      `cbor:"handle,omitempty"`
	Message      string       `cbor:"message,omitempty"`
	Commands     []Command    `cbor:"commands,omitempty"`
	Label        string       `cbor:"label,omitempty"`
	DomainOnly   bool         `cbor:"domain_only,omitempty"`
	Continuation Continuation `cbor:"continuation,omitempty"`
}

// IsZero reports whether c is the "no follow-up" value.
func (c Command) IsZero() bool {
	return c.Kind == CmdNone
}

// Interactive reports whether c needs the user before it can run.
func (c Command) Interactive() bool {
	return c.Kind == CmdDomainSessionPrompt || c.Kind == CmdConfirm
}

// Simple constructs a leaf command with no arguments.
func Simple(kind CommandKind) Command {
	return Command{Kind: kind}
}

// Load loads a job into a domain, bound to a session type.
func Load(session SessionType, d DomainType) Command {
	return Command{Kind: CmdLoad, Session: session, Domain: d}
}

// Unload removes a job from a domain.
func Unload(d DomainType) Command {
	return Command{Kind: CmdUnload, Domain: d}
}

// Enable clears the disabled override in a domain.
func Enable(d DomainType) Command {
	return Command{Kind: CmdEnable, Domain: d}
}

// Disable sets the disabled override in a domain.
func Disable(d DomainType) Command {
	return Command{Kind: CmdDisable, Domain: d}
}

// Chain runs cmds in order, stopping at the first failure.
func Chain(cmds ...Command) Command {
	return Command{Kind: CmdChain, Commands: cmds}
}

// Confirm gates cmds behind an explicit acknowledgement.
func Confirm(message string, cmds ...Command) Command {
	return Command{Kind: CmdConfirm, Message: message, Commands: cmds}
}

// Prompt asks the user for a domain (and a session unless domainOnly)
// and then applies k.
func Prompt(label string, domainOnly bool, k Continuation) Command {
	return Command{Kind: CmdDomainSessionPrompt, Label: label, DomainOnly: domainOnly, Continuation: k}
}

func (c Command) String() string {
	switch c.Kind {
	case CmdLoad:
		return fmt.Sprintf("load(%s, %s)", c.Session, c.Domain)
	case CmdUnload:
		return fmt.Sprintf("unload(%s)", c.Domain)
	case CmdEnable:
		return fmt.Sprintf("enable(%s)", c.Domain)
	case CmdDisable:
		return fmt.Sprintf("disable(%s)", c.Domain)
	case CmdChain:
		return "chain(" + joinCommands(c.Commands) + ")"
	case CmdConfirm:
		return fmt.Sprintf("confirm(%q, %s)", c.Message, joinCommands(c.Commands))
	case CmdDomainSessionPrompt:
		return fmt.Sprintf("domainsessionprompt(%s, %t, %s)", c.Label, c.DomainOnly, c.Continuation)
	}
	return c.Kind.String()
}

func joinCommands(cmds []Command) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// CatalogEntry is one omnibox command.
type CatalogEntry struct {
	Name        string
	Description string
	Command     Command
}

// Catalog lists the commands the omnibox offers for the highlighted job.
var Catalog = []CatalogEntry{
	{"load", "Load highlighted job", Simple(CmdLoadRequest)},
	{"unload", "Unload highlighted job", Simple(CmdUnloadRequest)},
	{"enable", "Enable highlighted job (enables load)", Simple(CmdEnableRequest)},
	{"disable", "Disable highlighted job (prevents load)", Simple(CmdDisableRequest)},
	{"edit", "Edit plist with $EDITOR, then reload job", Simple(CmdEdit)},
	{"reload", "Reload highlighted job", Simple(CmdReload)},
	{"procinfo", "Show process information for highlighted job", Simple(CmdProcInfo)},
	{"exit", "Quit launchk", Simple(CmdQuit)},
}

// LookupCommand finds a catalog entry by exact name or unique prefix.
func LookupCommand(name string) (CatalogEntry, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CatalogEntry{}, fmt.Errorf("empty command")
	}
	var matches []CatalogEntry
	for _, e := range Catalog {
		if e.Name == name {
			return e, nil
		}
		if strings.HasPrefix(e.Name, name) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return CatalogEntry{}, fmt.Errorf("unknown command %q", name)
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return CatalogEntry{}, fmt.Errorf("ambiguous command %q: %s", name, strings.Join(names, ", "))
}
