// Package main is the CLI entry point for launchk.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/codec"
	"github.com/deepakjacob/launchk/internal/domain"
	"github.com/deepakjacob/launchk/internal/tui"
	"github.com/deepakjacob/launchk/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "launchk",
	Short: "Browse and control launchd jobs",
	Long: `launchk lists every launchd job known from plists on disk or loaded
in any domain, and lets you load, unload, enable, disable, edit and
reload them.

Without a subcommand it starts the interactive browser.`,
	SilenceUsage: true,
	RunE:         runUI,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Long:  `Lists configured and loaded jobs, unloaded first, then by name.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var infoCmd = &cobra.Command{
	Use:   "info <label>",
	Short: "Show what launchd and the plist say about a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent load/unload/enable/disable operations",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// actionCommands map one subcommand each onto an omnibox command.
var actionCommands = []struct {
	name  string
	short string
	kind  domain.CommandKind
}{
	{"load", "Load a job into a domain", domain.CmdLoadRequest},
	{"unload", "Unload a job from a domain", domain.CmdUnloadRequest},
	{"enable", "Clear a job's disabled override", domain.CmdEnableRequest},
	{"disable", "Set a job's disabled override", domain.CmdDisableRequest},
	{"reload", "Unload and load a job again", domain.CmdReload},
	{"edit", "Edit a job's plist, then offer to reload it", domain.CmdEdit},
	{"procinfo", "Show process information for a running job", domain.CmdProcInfo},
}

var (
	configPath string

	listFilter string
	listTypes  []string
	jsonOutput bool

	historyLimit int

	actionDomain  string
	actionSession string
	actionYes     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $LAUNCHK_CONFIG or ~/.config/launchk/config.toml)")

	listCmd.Flags().StringVar(&listFilter, "filter", "", "Case-insensitive substring of the label")
	listCmd.Flags().StringSliceVar(&listTypes, "type", nil, "Job type flags that must all match (system,global,user,agent,daemon,loaded,disabled)")
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	infoCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of records to show (0 for all)")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	for _, ac := range actionCommands {
		name, kind := ac.name, ac.kind
		c := &cobra.Command{
			Use:   ac.name + " <label>",
			Short: ac.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAction(name, args[0], domain.Simple(kind))
			},
		}
		c.Flags().StringVar(&actionDomain, "domain", "", "Domain when launchd does not know it (system, user, gui, login, pid, ...)")
		c.Flags().StringVar(&actionSession, "session", "", "Session type for load/reload (Aqua, StandardIO, Background, LoginWindow, System)")
		c.Flags().BoolVarP(&actionYes, "yes", "y", false, "Answer yes to confirmations")
		rootCmd.AddCommand(c)
	}
}

func runUI(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	// Subscribe before the first tick so it is not missed.
	updates := a.roster.Subscribe()
	go func() {
		if err := a.roster.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
			a.logger.Warn("roster stopped", zap.Error(err))
		}
	}()

	model := tui.NewModel(ctx, tui.Options{
		Lister:    a.presenter,
		Handler:   a.controller,
		Updates:   updates,
		JobFilter: a.cfg.JobTypeFilter,
		Domains:   a.transport.Domains(),
		Logger:    a.logger,
	})
	a.executor.SetPager(model.Pager())
	a.controller.SetSurface(model.Surface())

	return tui.Run(ctx, model)
}

type listRow struct {
	Name     string `json:"name"`
	Loaded   bool   `json:"loaded"`
	PID      int64  `json:"pid,omitempty"`
	Domain   string `json:"domain"`
	Session  string `json:"session"`
	JobType  string `json:"job_type"`
	Plist    string `json:"plist,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

func toRow(item domain.ServiceListItem) listRow {
	row := listRow{
		Name:    item.Name,
		Loaded:  item.Loaded(),
		PID:     item.Status.PID(),
		Domain:  item.Status.Domain.String(),
		Session: item.Status.Session.String(),
		JobType: item.JobType.String(),
	}
	if p := item.Status.Plist; p != nil {
		row.Plist = p.PlistPath
		row.ReadOnly = p.ReadOnly
	}
	return row
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	jobFilter := a.cfg.JobTypeFilter
	if cmd.Flags().Changed("type") {
		if jobFilter, err = domain.ParseJobTypeFilter(listTypes); err != nil {
			return err
		}
	}

	a.roster.Tick()
	items := a.presenter.Items(listFilter, jobFilter)

	if jsonOutput {
		rows := make([]listRow, len(items))
		for i, item := range items {
			rows[i] = toRow(item)
		}
		return writeJSON(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSESSION\tJOB TYPE\tPID\tLOADED")
	for _, item := range items {
		r := toRow(item)
		pid := "-"
		if r.PID != 0 {
			pid = fmt.Sprintf("%d", r.PID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", r.Name, r.Session, r.JobType, pid, r.Loaded)
	}
	return w.Flush()
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	label := args[0]
	item, err := a.item(label)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(toRow(item))
	}

	r := toRow(item)
	fmt.Printf("Label:     %s\n", r.Name)
	fmt.Printf("Loaded:    %t\n", r.Loaded)
	fmt.Printf("Domain:    %s\n", r.Domain)
	fmt.Printf("Session:   %s\n", r.Session)
	fmt.Printf("PID:       %d\n", r.PID)
	fmt.Printf("Job type:  %s\n", r.JobType)
	if p := item.Status.Plist; p != nil {
		fmt.Printf("Plist:     %s\n", p.PlistPath)
		if p.Program != "" {
			fmt.Printf("Program:   %s\n", p.Program)
		}
		if p.ReadOnly {
			fmt.Println("           (read-only)")
		}
	} else {
		fmt.Println("Plist:     none found")
	}

	// Probe again uncached so a stale row cannot hide a changed domain.
	live, err := a.resolver.Lookup(label)
	switch {
	case errors.Is(err, domain.ErrNotFound) && item.Loaded():
		fmt.Println("\nlaunchd lists this job but no domain answered a lookup for it.")
	case err == nil && live.Domain != item.Status.Info.Domain:
		fmt.Printf("\nlaunchd now reports domain %s.\n", live.Domain)
	}
	return nil
}

func runAction(name, label string, cmd domain.Command) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.item(label)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	in := newFlagInteractor(actionDomain, actionSession, actionYes, a.transport.Domains(), os.Stdin, os.Stdout)
	if err := usecase.Drive(ctx, a.controller, &item, cmd, in); err != nil {
		if errors.Is(err, usecase.ErrDeclined) {
			fmt.Println("Aborted.")
			return nil
		}
		return err
	}

	if cmd.Kind != domain.CmdProcInfo {
		fmt.Printf("%s %s: ok\n", name, label)
	}
	return nil
}

type historyRow struct {
	ID         string    `json:"id"`
	ExecutedAt time.Time `json:"executed_at"`
	Operation  string    `json:"operation"`
	Label      string    `json:"label"`
	Domain     string    `json:"domain"`
	Session    string    `json:"session,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	Error      string    `json:"error,omitempty"`
	Command    string    `json:"command"`
	// CommandCBOR is the stored command in CBOR diagnostic notation.
	CommandCBOR string `json:"command_cbor,omitempty"`
}

func toHistoryRow(rec domain.MutationRecord) historyRow {
	row := historyRow{
		ID:         rec.ID,
		ExecutedAt: time.Unix(0, rec.ExecutedAt),
		Operation:  string(rec.Operation),
		Label:      rec.Label,
		Domain:     rec.Domain.String(),
		Succeeded:  rec.Succeeded,
		Error:      rec.Error,
		Command:    rec.Command.String(),
	}
	if rec.Session.Known() {
		row.Session = rec.Session.String()
	}
	if data, err := codec.EncodeCommand(rec.Command); err == nil {
		row.CommandCBOR, _ = codec.Diagnose(data)
	}
	return row
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.journal == nil {
		return fmt.Errorf("mutation journal is disabled or unavailable (see log at %s)", a.cfg.LogPath)
	}
	records, err := a.journal.Recent(historyLimit)
	if err != nil {
		return err
	}

	rows := make([]historyRow, len(records))
	for i, rec := range records {
		rows[i] = toHistoryRow(rec)
	}
	if jsonOutput {
		return writeJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No operations recorded.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOP\tLABEL\tDOMAIN\tSESSION\tRESULT")
	for _, r := range rows {
		result := "ok"
		if !r.Succeeded {
			result = "failed: " + r.Error
		}
		session := r.Session
		if session == "" {
			session = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ExecutedAt.Format(time.DateTime), r.Operation, r.Label, r.Domain, session, result)
	}
	return w.Flush()
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("launchk %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
