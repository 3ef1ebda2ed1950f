package fixtures

import (
	"os"
	"path/filepath"

	"howett.net/plist"

	"github.com/deepakjacob/launchk/internal/domain"
	"github.com/deepakjacob/launchk/internal/infra"
)

// PlistTree lays out LaunchAgents/LaunchDaemons directories under Root
// the way they sit under ~/Library and /Library.
type PlistTree struct {
	Root string
}

// NewPlistTree creates a tree generator rooted at root.
func NewPlistTree(root string) *PlistTree {
	return &PlistTree{Root: root}
}

// UserAgents is the ~/Library/LaunchAgents stand-in.
func (t *PlistTree) UserAgents() string {
	return filepath.Join(t.Root, "Users", "me", "Library", "LaunchAgents")
}

// GlobalDaemons is the /Library/LaunchDaemons stand-in.
func (t *PlistTree) GlobalDaemons() string {
	return filepath.Join(t.Root, "Library", "LaunchDaemons")
}

// SystemAgents is the SIP-protected /System/Library/LaunchAgents stand-in.
func (t *PlistTree) SystemAgents() string {
	return filepath.Join(t.Root, "System", "Library", "LaunchAgents")
}

// Create makes every directory.
func (t *PlistTree) Create() error {
	for _, dir := range []string{t.UserAgents(), t.GlobalDaemons(), t.SystemAgents()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Dirs returns the search paths a PlistStore should scan.
func (t *PlistTree) Dirs() []infra.PlistDir {
	return []infra.PlistDir{
		{Path: t.SystemAgents(), Location: domain.LocationSystem, Kind: domain.KindAgent, ReadOnly: true},
		{Path: t.GlobalDaemons(), Location: domain.LocationGlobal, Kind: domain.KindDaemon},
		{Path: t.UserAgents(), Location: domain.LocationUser, Kind: domain.KindAgent},
	}
}

// Job is the subset of launchd.plist(5) keys fixtures write.
type Job struct {
	Label                  string   `plist:"Label"`
	ProgramArguments       []string `plist:"ProgramArguments,omitempty"`
	Disabled               bool     `plist:"Disabled,omitempty"`
	LimitLoadToSessionType string   `plist:"LimitLoadToSessionType,omitempty"`
	RunAtLoad              bool     `plist:"RunAtLoad,omitempty"`
}

// WriteJob writes job as an XML plist named after its label into dir and
// returns the path.
func (t *PlistTree) WriteJob(dir string, job Job) (string, error) {
	if len(job.ProgramArguments) == 0 {
		job.ProgramArguments = []string{"/usr/local/bin/" + job.Label}
	}
	data, err := plist.MarshalIndent(job, plist.XMLFormat, "\t")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, job.Label+".plist")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
