package infra

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"howett.net/plist"

	"github.com/deepakjacob/launchk/internal/domain"
)

// ErrReadOnlyPlist is returned when editing a plist the user cannot replace.
var ErrReadOnlyPlist = errors.New("plist is read-only")

// PlistDir is one directory of job definitions.
type PlistDir struct {
	Path     string
	Location domain.EntryLocation
	Kind     domain.EntryKind
	// ReadOnly marks SIP-protected trees.
	ReadOnly bool
}

// DefaultPlistDirs returns the standard launchd search paths plus the
// user's LaunchAgents directory (ExecModeConfig.PlistDir), followed by any
// extra directories (treated as user agents or daemons by name).
func DefaultPlistDirs(userAgents string, extra []string) []PlistDir {
	dirs := []PlistDir{
		{Path: "/System/Library/LaunchAgents", Location: domain.LocationSystem, Kind: domain.KindAgent, ReadOnly: true},
		{Path: "/System/Library/LaunchDaemons", Location: domain.LocationSystem, Kind: domain.KindDaemon, ReadOnly: true},
		{Path: "/Library/LaunchAgents", Location: domain.LocationGlobal, Kind: domain.KindAgent},
		{Path: "/Library/LaunchDaemons", Location: domain.LocationGlobal, Kind: domain.KindDaemon},
	}
	if userAgents != "" {
		dirs = append(dirs, PlistDir{Path: userAgents, Location: domain.LocationUser, Kind: domain.KindAgent})
	}
	for _, p := range extra {
		kind := domain.KindAgent
		if strings.Contains(filepath.Base(p), "Daemon") {
			kind = domain.KindDaemon
		}
		dirs = append(dirs, PlistDir{Path: p, Location: domain.LocationUser, Kind: kind})
	}
	return dirs
}

// plistDoc is the subset of launchd.plist(5) keys launchk reads.
type plistDoc struct {
	Label                  string   `plist:"Label"`
	Program                string   `plist:"Program"`
	ProgramArguments       []string `plist:"ProgramArguments"`
	Disabled               bool     `plist:"Disabled"`
	LimitLoadToSessionType any      `plist:"LimitLoadToSessionType"`
}

// PlistStore implements domain.ConfigStore over the plist directories.
type PlistStore struct {
	dirs   []PlistDir
	editor Editor
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]domain.EntryConfig
}

// NewPlistStore creates an empty store. Call Refresh to scan.
func NewPlistStore(dirs []PlistDir, editor Editor, logger *zap.Logger) *PlistStore {
	return &PlistStore{
		dirs:    dirs,
		editor:  editor,
		logger:  logger,
		entries: make(map[string]domain.EntryConfig),
	}
}

// ConfigFor returns a copy of the plist for label.
func (s *PlistStore) ConfigFor(label string) (*domain.EntryConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.entries[label]
	if !ok {
		return nil, false
	}
	return &cfg, true
}

// AllConfigured returns a copy of every known plist keyed by label.
func (s *PlistStore) AllConfigured() map[string]domain.EntryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.EntryConfig, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Refresh rescans every directory and replaces the map wholesale.
// Missing directories are skipped. When a label appears twice the later
// directory wins, so user agents shadow global ones.
func (s *PlistStore) Refresh() error {
	entries := make(map[string]domain.EntryConfig)
	for _, dir := range s.dirs {
		matches, err := filepath.Glob(filepath.Join(dir.Path, "*.plist"))
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", dir.Path, err)
		}
		for _, path := range matches {
			cfg, err := s.load(dir, path)
			if err != nil {
				s.logger.Debug("skipping plist",
					zap.String("path", path),
					zap.Error(err))
				continue
			}
			entries[cfg.Label] = cfg
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Debug("plist scan complete", zap.Int("entries", len(entries)))
	return nil
}

func (s *PlistStore) load(dir PlistDir, path string) (domain.EntryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.EntryConfig{}, err
	}
	cfg, err := parsePlist(data)
	if err != nil {
		return domain.EntryConfig{}, err
	}
	cfg.PlistPath = path
	cfg.Location = dir.Location
	cfg.Kind = dir.Kind
	cfg.ReadOnly = dir.ReadOnly || unix.Access(path, unix.W_OK) != nil
	return cfg, nil
}

// parsePlist decodes an XML, binary or OpenStep plist into an EntryConfig.
func parsePlist(data []byte) (domain.EntryConfig, error) {
	var doc plistDoc
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return domain.EntryConfig{}, fmt.Errorf("invalid plist: %w", err)
	}
	if doc.Label == "" {
		return domain.EntryConfig{}, errors.New("plist has no Label")
	}

	program := doc.Program
	if program == "" && len(doc.ProgramArguments) > 0 {
		program = doc.ProgramArguments[0]
	}

	return domain.EntryConfig{
		Label:                  doc.Label,
		Program:                program,
		Disabled:               doc.Disabled,
		LimitLoadToSessionType: declaredSession(doc.LimitLoadToSessionType),
	}, nil
}

// declaredSession reads LimitLoadToSessionType, which may be a string or
// an array of strings. For an array the first entry is used.
func declaredSession(v any) domain.SessionType {
	switch s := v.(type) {
	case string:
		return domain.SessionTypeFromString(s)
	case []any:
		if len(s) > 0 {
			if first, ok := s[0].(string); ok {
				return domain.SessionTypeFromString(first)
			}
		}
	}
	return domain.SessionUnknown
}

// EditAndReplace opens an XML copy of the plist in the editor and, if the
// result is a valid plist with the same Label, writes it back in the
// original encoding. On any failure the original file is untouched.
func (s *PlistStore) EditAndReplace(cfg domain.EntryConfig) error {
	if cfg.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnlyPlist, cfg.PlistPath)
	}
	if s.editor == nil {
		return errors.New("no editor configured")
	}

	original, err := os.ReadFile(cfg.PlistPath)
	if err != nil {
		return fmt.Errorf("failed to read plist: %w", err)
	}
	var doc any
	format, err := plist.Unmarshal(original, &doc)
	if err != nil {
		return fmt.Errorf("failed to parse plist: %w", err)
	}

	xml, err := plist.MarshalIndent(doc, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("failed to encode plist for editing: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "launchk-*.plist")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(xml); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	tmpFile.Close()

	s.logger.Info("editing plist",
		zap.String("label", cfg.Label),
		zap.String("path", cfg.PlistPath))

	if err := s.editor.Edit(tmpPath); err != nil {
		return err
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to read edited plist: %w", err)
	}
	if bytes.Equal(edited, xml) {
		s.logger.Debug("plist unchanged", zap.String("label", cfg.Label))
		return nil
	}

	var editedDoc any
	if _, err := plist.Unmarshal(edited, &editedDoc); err != nil {
		return fmt.Errorf("edited plist is invalid: %w", err)
	}
	newCfg, err := parsePlist(edited)
	if err != nil {
		return fmt.Errorf("edited plist is invalid: %w", err)
	}
	if newCfg.Label != cfg.Label {
		return fmt.Errorf("edited plist changed Label from %q to %q", cfg.Label, newCfg.Label)
	}

	// OpenStep and GNUStep plists are rewritten as XML.
	if format != plist.BinaryFormat {
		format = plist.XMLFormat
	}
	out, err := plist.MarshalIndent(editedDoc, format, "\t")
	if err != nil {
		return fmt.Errorf("failed to encode plist: %w", err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(cfg.PlistPath); err == nil {
		mode = info.Mode().Perm()
	}
	if err := atomicWriteFile(cfg.PlistPath, out, mode); err != nil {
		return fmt.Errorf("failed to replace plist: %w", err)
	}

	newCfg.PlistPath = cfg.PlistPath
	newCfg.Location = cfg.Location
	newCfg.Kind = cfg.Kind
	newCfg.ReadOnly = cfg.ReadOnly

	s.mu.Lock()
	s.entries[newCfg.Label] = newCfg
	s.mu.Unlock()
	return nil
}

// atomicWriteFile writes data to a temp file in dst's directory, syncs,
// and renames it over dst.
func atomicWriteFile(dst string, data []byte, mode os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".launchk-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err = tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err = os.Chmod(tmpPath, mode); err != nil {
		return err
	}
	if err = os.Rename(tmpPath, dst); err != nil {
		return err
	}

	success = true
	return nil
}

// Ensure PlistStore implements domain.ConfigStore.
var _ domain.ConfigStore = (*PlistStore)(nil)
