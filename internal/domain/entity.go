// Package domain contains core entities and interfaces.
// This is the innermost layer - no dependencies on infra or UI code.
package domain

import (
	"fmt"
	"strings"
)

// DomainType identifies where launchd registered a service.
// The zero value is DomainUnknown ("not yet resolved").
type DomainType uint8

const (
	DomainUnknown       DomainType = 0
	DomainSystem        DomainType = 1
	DomainUser          DomainType = 2
	DomainUserLogin     DomainType = 3
	DomainSession       DomainType = 4
	DomainPID           DomainType = 5
	DomainRequestorUser DomainType = 6
	DomainRequestor     DomainType = 7
)

// probeDomainCount is the size of the raw search space (0..7).
const probeDomainCount = 8

// ProbeDomains returns every raw domain value in probe order.
// Order is a property of the search only.
func ProbeDomains() []DomainType {
	out := make([]DomainType, 0, probeDomainCount)
	for d := 0; d < probeDomainCount; d++ {
		out = append(out, DomainType(d))
	}
	return out
}

// PromptDomains returns the named domains a user can pick from.
func PromptDomains() []DomainType {
	return []DomainType{
		DomainSystem,
		DomainUser,
		DomainUserLogin,
		DomainSession,
		DomainPID,
		DomainRequestorUser,
		DomainRequestor,
	}
}

// String returns a human-readable domain name.
func (d DomainType) String() string {
	switch d {
	case DomainSystem:
		return "System"
	case DomainUser:
		return "User"
	case DomainUserLogin:
		return "UserLogin"
	case DomainSession:
		return "Session"
	case DomainPID:
		return "PID"
	case DomainRequestorUser:
		return "RequestorUserDomain"
	case DomainRequestor:
		return "RequestorDomain"
	case DomainUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Domain(%d)", uint8(d))
	}
}

// ParseDomainType accepts domain names (case-insensitive) and the
// launchctl target spellings (system, user, gui, login, pid).
func ParseDomainType(s string) (DomainType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return DomainSystem, nil
	case "user":
		return DomainUser, nil
	case "userlogin", "gui":
		return DomainUserLogin, nil
	case "session", "login":
		return DomainSession, nil
	case "pid":
		return DomainPID, nil
	case "requestoruserdomain", "requestoruser":
		return DomainRequestorUser, nil
	case "requestordomain", "requestor":
		return DomainRequestor, nil
	}
	return DomainUnknown, fmt.Errorf("unknown domain: %q", s)
}

// SessionType is the LimitLoadToSessionType a job is bound to.
// See https://developer.apple.com/library/archive/technotes/tn2083/_index.html
type SessionType string

const (
	SessionAqua        SessionType = "Aqua"
	SessionStandardIO  SessionType = "StandardIO"
	SessionBackground  SessionType = "Background"
	SessionLoginWindow SessionType = "LoginWindow"
	SessionSystem      SessionType = "System"
	SessionUnknown     SessionType = "Unknown"
)

// KnownSessionTypes returns the five concrete session types.
func KnownSessionTypes() []SessionType {
	return []SessionType{SessionAqua, SessionStandardIO, SessionBackground, SessionLoginWindow, SessionSystem}
}

// SessionTypeFromString converts a daemon-reported string. It never fails:
// anything that is not exactly one of the known labels is SessionUnknown.
func SessionTypeFromString(s string) SessionType {
	for _, st := range KnownSessionTypes() {
		if s == string(st) {
			return st
		}
	}
	return SessionUnknown
}

// Known reports whether the session type was resolved.
func (s SessionType) Known() bool {
	return s != SessionUnknown && s != ""
}

func (s SessionType) String() string {
	if s == "" {
		return string(SessionUnknown)
	}
	return string(s)
}

// EntryLocation is the plist directory tier a job was found in.
type EntryLocation string

const (
	LocationSystem EntryLocation = "system" // /System/Library
	LocationGlobal EntryLocation = "global" // /Library
	LocationUser   EntryLocation = "user"   // ~/Library
)

// EntryKind is agent (per-user) or daemon (system-wide).
type EntryKind string

const (
	KindAgent  EntryKind = "agent"
	KindDaemon EntryKind = "daemon"
)

// EntryConfig is an on-disk job definition.
type EntryConfig struct {
	Label                  string
	PlistPath              string
	Location               EntryLocation
	Kind                   EntryKind
	Program                string
	Disabled               bool
	ReadOnly               bool
	LimitLoadToSessionType SessionType
}

// JobTypeFilter returns the bitmask classifying this entry.
func (c EntryConfig) JobTypeFilter(loaded bool) JobTypeFilter {
	var f JobTypeFilter
	switch c.Location {
	case LocationSystem:
		f |= JobSystem
	case LocationGlobal:
		f |= JobGlobal
	case LocationUser:
		f |= JobUser
	}
	switch c.Kind {
	case KindAgent:
		f |= JobAgent
	case KindDaemon:
		f |= JobDaemon
	}
	if loaded {
		f |= JobLoaded
	}
	if c.Disabled {
		f |= JobDisabled
	}
	return f
}

// EntryInfo is the per-label snapshot resolved from launchd.
// The zero value is the "nothing known" default.
type EntryInfo struct {
	PID                    int64
	LimitLoadToSessionType SessionType
	// Domain is the domain that answered the probe.
	Domain DomainType
	Config *EntryConfig
}

// DefaultEntryInfo returns the value used when no domain answered.
func DefaultEntryInfo() EntryInfo {
	return EntryInfo{LimitLoadToSessionType: SessionUnknown, Domain: DomainUnknown}
}

// EntryStatus is what the command resolver reasons over.
type EntryStatus struct {
	Info    EntryInfo
	Domain  DomainType
	Session SessionType
	Plist   *EntryConfig
}

// PID returns the running pid, 0 if not running.
func (s EntryStatus) PID() int64 {
	return s.Info.PID
}

// ServiceListItem is one presentation row. Rows are rebuilt every cycle
// and never mutated in place.
type ServiceListItem struct {
	Name    string
	Status  EntryStatus
	JobType JobTypeFilter
}

// Loaded reports whether the roster had the label on the last tick.
func (i ServiceListItem) Loaded() bool {
	return i.JobType.Intersects(JobLoaded)
}

// MutationRecord is a journal row for one executed primitive.
type MutationRecord struct {
	ID         string
	Label      string
	Operation  MutationOp
	Domain     DomainType
	Session    SessionType
	Succeeded  bool
	Error      string
	Command    Command
	ExecutedAt int64
}
