package domain

import (
	"context"
	"io"
)

// MutationOp is a lifecycle operation on a job.
type MutationOp string

const (
	OpLoad    MutationOp = "load"
	OpUnload  MutationOp = "unload"
	OpEnable  MutationOp = "enable"
	OpDisable MutationOp = "disable"
)

// Mutation is everything the transport needs to change a job's state.
type Mutation struct {
	Op        MutationOp
	Label     string
	PlistPath string
	Domain    DomainType
	Session   SessionType
}

// Transport talks to launchd.
// Implementation: launchctl(1) wrapper in infra.
type Transport interface {
	// Query looks up a single job in a domain, or lists the domain when
	// name is empty. A response may carry an embedded ErrorKey.
	Query(d DomainType, name string) (Record, error)

	// Mutate performs a load/unload/enable/disable.
	Mutate(m Mutation) error

	// StreamProcessInfo writes launchd's process dump for pid into sink.
	StreamProcessInfo(pid int64, sink io.Writer) error
}

// ConfigStore provides access to on-disk job plists.
type ConfigStore interface {
	// ConfigFor returns the plist for a label, if one exists.
	ConfigFor(label string) (*EntryConfig, bool)

	// AllConfigured returns a copy of every known plist keyed by label.
	AllConfigured() map[string]EntryConfig

	// EditAndReplace opens the plist in the user's editor and persists the result.
	EditAndReplace(cfg EntryConfig) error

	// Refresh rescans the plist directories.
	Refresh() error
}

// EntryResolver resolves a label to its launchd snapshot.
type EntryResolver interface {
	// Resolve never fails; absence of information is the default EntryInfo.
	Resolve(label string) EntryInfo
}

// RosterReader exposes the set of currently loaded labels.
type RosterReader interface {
	// Snapshot returns a copy of the loaded label set.
	Snapshot() map[string]struct{}
}

// Pipe is a private one-way byte channel. Closing the writer ends the
// reader's stream.
type Pipe interface {
	Reader() io.ReadCloser
	Writer() io.WriteCloser

	// Remove closes both ends and releases the channel.
	Remove() error
}

// PipeFactory creates pipes.
// Implementation: named FIFO in infra.
type PipeFactory interface {
	NewPipe() (Pipe, error)
}

// Pager displays a block of text to the user.
type Pager interface {
	Show(title string, data []byte) error
}

// Surface is the transient UI the resolver can reset after handing the
// terminal to an external program.
type Surface interface {
	Clear()
}

// ProcessInspector describes a running process.
// Implementation: uses gopsutil.
type ProcessInspector interface {
	Describe(pid int64) (string, error)
}

// Journal persists executed mutations.
type Journal interface {
	// Record appends one mutation outcome.
	Record(rec MutationRecord) error

	// Recent returns the newest records first.
	Recent(limit int) ([]MutationRecord, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// KeyProvider abstracts the source of the journal encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// CommandHandler resolves and runs omnibox commands for a selection.
type CommandHandler interface {
	Handle(ctx context.Context, selected *ServiceListItem, cmd Command) (Command, error)
}
