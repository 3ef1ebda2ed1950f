//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
	"github.com/deepakjacob/launchk/internal/infra"
	"github.com/deepakjacob/launchk/internal/usecase"
	"github.com/deepakjacob/launchk/internal/watch"
	"github.com/deepakjacob/launchk/test/fixtures"
)

const uid = 501

// answers is a scripted usecase.Interactor.
type answers struct {
	domain  domain.DomainType
	session domain.SessionType
	confirm bool

	prompts  []bool
	confirms []string
}

func (a *answers) Prompt(label string, domainOnly bool) (domain.DomainType, domain.SessionType, error) {
	a.prompts = append(a.prompts, domainOnly)
	if domainOnly {
		return a.domain, domain.SessionUnknown, nil
	}
	return a.domain, a.session, nil
}

func (a *answers) Confirm(message string) (bool, error) {
	a.confirms = append(a.confirms, message)
	return a.confirm, nil
}

// capturePager keeps the last page shown.
type capturePager struct {
	mu    sync.Mutex
	title string
	data  []byte
}

func (p *capturePager) Show(title string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title, p.data = title, data
	return nil
}

var _ = Describe("launchk against a fake launchd", func() {
	var (
		tmpDir     string
		tree       *fixtures.PlistTree
		launchd    *fixtures.FakeLaunchd
		edits      func(path string) error
		store      *infra.PlistStore
		roster     *watch.Roster
		presenter  *usecase.Presenter
		controller *usecase.Controller
		journal    *infra.EncryptedJournal
		pager      *capturePager
		ctx        context.Context
	)

	item := func(label string) *domain.ServiceListItem {
		roster.Tick()
		it, ok := presenter.Item(label)
		Expect(ok).To(BeTrue(), "no row for %s", label)
		return &it
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "launchk-integration-*")
		Expect(err).NotTo(HaveOccurred())

		tree = fixtures.NewPlistTree(tmpDir)
		Expect(tree.Create()).To(Succeed())

		_, err = tree.WriteJob(tree.UserAgents(), fixtures.Job{Label: "com.example.agent", RunAtLoad: true})
		Expect(err).NotTo(HaveOccurred())
		_, err = tree.WriteJob(tree.UserAgents(), fixtures.Job{Label: "com.example.background", LimitLoadToSessionType: "Background"})
		Expect(err).NotTo(HaveOccurred())
		_, err = tree.WriteJob(tree.GlobalDaemons(), fixtures.Job{Label: "com.example.daemon", Disabled: true})
		Expect(err).NotTo(HaveOccurred())
		_, err = tree.WriteJob(tree.SystemAgents(), fixtures.Job{Label: "com.apple.protected"})
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		launchd = fixtures.NewFakeLaunchd(uid)
		transport := infra.NewLaunchctlTransport(launchd, uid, logger)

		edits = func(string) error { return nil }
		store = infra.NewPlistStore(tree.Dirs(), infra.EditorFunc(func(path string) error {
			return edits(path)
		}), logger)
		Expect(store.Refresh()).To(Succeed())

		cache := usecase.NewEntryCache()
		resolver := usecase.NewResolver(transport, store, cache, logger)
		roster = watch.NewRoster(watch.DefaultRosterConfig(), transport, store, logger)
		presenter = usecase.NewPresenter(store, roster, resolver)

		GinkgoT().Setenv(infra.EnvJournalKey, "")
		journal, err = infra.OpenJournal(filepath.Join(tmpDir, "data"))
		Expect(err).NotTo(HaveOccurred())

		pager = &capturePager{}
		executor := usecase.NewExecutor(usecase.ExecutorDeps{
			Transport: transport,
			Cache:     cache,
			Journal:   journal,
			Pipes:     infra.FifoFactory{},
			Inspector: infra.NewProcessInspector(),
			Pager:     pager,
		}, logger)
		controller = usecase.NewController(store, executor, nil, logger)
		ctx = context.Background()
	})

	AfterEach(func() {
		journal.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("listing", func() {
		It("should merge plists on disk with jobs only launchd knows", func() {
			launchd.Preload("gui/501", "com.example.agent")
			launchd.Preload("system", "com.example.orphan")
			roster.Tick()

			var names []string
			for _, it := range presenter.Items("", 0) {
				names = append(names, it.Name)
			}
			Expect(names).To(Equal([]string{
				"com.apple.protected",
				"com.example.background",
				"com.example.daemon",
				"com.example.agent",
				"com.example.orphan",
			}))
		})

		It("should resolve the domain and session of a loaded job", func() {
			pid := launchd.Preload("gui/501", "com.example.agent")

			it := item("com.example.agent")
			Expect(it.Loaded()).To(BeTrue())
			Expect(it.Status.Domain).To(Equal(domain.DomainUserLogin))
			Expect(it.Status.Session).To(Equal(domain.SessionAqua))
			Expect(it.Status.PID()).To(Equal(pid))
		})

		It("should classify by location, kind and override", func() {
			daemons := presenter.Items("", domain.JobGlobal|domain.JobDaemon)
			Expect(daemons).To(HaveLen(1))
			Expect(daemons[0].Name).To(Equal("com.example.daemon"))
			Expect(daemons[0].JobType.Contains(domain.JobDisabled)).To(BeTrue())

			protected := presenter.Items("protected", 0)
			Expect(protected).To(HaveLen(1))
			Expect(protected[0].Status.Plist.ReadOnly).To(BeTrue())
		})
	})

	Describe("load", func() {
		It("should prompt for a domain and session then bootstrap the plist", func() {
			in := &answers{domain: domain.DomainUserLogin, session: domain.SessionAqua}

			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdLoadRequest), in)

			Expect(err).NotTo(HaveOccurred())
			Expect(in.prompts).To(Equal([]bool{false}))
			Expect(launchd.Loaded("gui/501", "com.example.agent")).To(BeTrue())

			after := item("com.example.agent")
			Expect(after.Loaded()).To(BeTrue())
			Expect(after.Status.Domain).To(Equal(domain.DomainUserLogin))
		})

		It("should surface launchd's refusal", func() {
			launchd.Preload("gui/501", "com.example.agent")
			in := &answers{domain: domain.DomainUserLogin, session: domain.SessionAqua}

			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdLoadRequest), in)

			var cmdErr *domain.CommandError
			Expect(errors.As(err, &cmdErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("already in progress"))
		})
	})

	Describe("unload", func() {
		It("should boot out from the domain launchd reported without asking", func() {
			launchd.Preload("user/501", "com.example.background")
			in := &answers{}

			err := usecase.Drive(ctx, controller, item("com.example.background"), domain.Simple(domain.CmdUnloadRequest), in)

			Expect(err).NotTo(HaveOccurred())
			Expect(in.prompts).To(BeEmpty())
			Expect(launchd.Mutations()).To(Equal([]string{"bootout user/501/com.example.background"}))
			Expect(item("com.example.background").Loaded()).To(BeFalse())
		})

		It("should ask only for a domain when the job is not loaded", func() {
			launchd.Preload("system", "com.example.daemon")
			in := &answers{domain: domain.DomainSystem}

			// The row was captured before launchd saw the job.
			stale, ok := presenter.Item("com.example.daemon")
			Expect(ok).To(BeTrue())

			err := usecase.Drive(ctx, controller, &stale, domain.Simple(domain.CmdUnloadRequest), in)

			Expect(err).NotTo(HaveOccurred())
			Expect(in.prompts).To(Equal([]bool{true}))
			Expect(launchd.Loaded("system", "com.example.daemon")).To(BeFalse())
		})
	})

	Describe("reload", func() {
		It("should unload then load in the same domain and session", func() {
			launchd.Preload("gui/501", "com.example.agent")

			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdReload), &answers{})

			Expect(err).NotTo(HaveOccurred())
			Expect(launchd.Mutations()).To(HaveLen(2))
			Expect(launchd.Mutations()[0]).To(Equal("bootout gui/501/com.example.agent"))
			Expect(launchd.Mutations()[1]).To(HavePrefix("bootstrap gui/501 "))
			Expect(launchd.Loaded("gui/501", "com.example.agent")).To(BeTrue())
		})

		It("should stop the chain when the unload fails", func() {
			launchd.Preload("gui/501", "com.example.agent")
			launchd.FailNext("bootout", "Boot-out failed: 1: Operation not permitted")

			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdReload), &answers{})

			Expect(err).To(HaveOccurred())
			Expect(launchd.Mutations()).To(HaveLen(1))
		})
	})

	Describe("enable and disable", func() {
		It("should always prompt for the enable domain", func() {
			in := &answers{domain: domain.DomainSystem}

			err := usecase.Drive(ctx, controller, item("com.example.daemon"), domain.Simple(domain.CmdEnableRequest), in)

			Expect(err).NotTo(HaveOccurred())
			Expect(in.prompts).To(Equal([]bool{true}))
			Expect(launchd.Mutations()).To(Equal([]string{"enable system/com.example.daemon"}))
		})

		It("should disable in the loaded domain", func() {
			launchd.Preload("gui/501", "com.example.agent")

			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdDisableRequest), &answers{})

			Expect(err).NotTo(HaveOccurred())
			Expect(launchd.Disabled("gui/501", "com.example.agent")).To(BeTrue())
		})
	})

	Describe("edit", func() {
		It("should rewrite the plist and reload after confirmation", func() {
			launchd.Preload("gui/501", "com.example.agent")
			edits = func(path string) error {
				_, err := tree.WriteJob(filepath.Dir(path), fixtures.Job{
					Label:            "com.example.agent",
					ProgramArguments: []string{"/opt/agent", "--verbose"},
				})
				if err != nil {
					return err
				}
				// WriteJob names the file after the label; move it over the temp copy.
				return os.Rename(filepath.Join(filepath.Dir(path), "com.example.agent.plist"), path)
			}
			in := &answers{confirm: true}

			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdEdit), in)

			Expect(err).NotTo(HaveOccurred())
			Expect(in.confirms).To(Equal([]string{"Reload com.example.agent?"}))
			cfg, ok := store.ConfigFor("com.example.agent")
			Expect(ok).To(BeTrue())
			Expect(cfg.Program).To(Equal("/opt/agent"))
			Expect(launchd.Mutations()).To(HaveLen(2))
		})

		It("should leave launchd alone when the reload is declined", func() {
			in := &answers{confirm: false}

			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdEdit), in)

			Expect(err).To(MatchError(usecase.ErrDeclined))
			Expect(launchd.Mutations()).To(BeEmpty())
		})

		It("should refuse a protected plist", func() {
			err := usecase.Drive(ctx, controller, item("com.apple.protected"), domain.Simple(domain.CmdEdit), &answers{})

			Expect(err).To(MatchError(ContainSubstring("read-only")))
		})
	})

	Describe("procinfo", func() {
		It("should page launchd's dump for the running pid", func() {
			pid := launchd.Preload("gui/501", "com.example.agent")

			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdProcInfo), &answers{})

			Expect(err).NotTo(HaveOccurred())
			Expect(pager.title).To(ContainSubstring("com.example.agent"))
			Expect(string(pager.data)).To(ContainSubstring("responsible pid"))
			Expect(launchd.Mutations()).To(ContainElement(HaveSuffix(" " + strconv.FormatInt(pid, 10))))
		})

		It("should fail for a job that is not running", func() {
			err := usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdProcInfo), &answers{})

			Expect(err).To(MatchError(ContainSubstring("No PID")))
		})
	})

	Describe("journal", func() {
		It("should record every primitive with its outcome", func() {
			launchd.Preload("gui/501", "com.example.agent")
			launchd.FailNext("disable", "Could not disable")

			Expect(usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdReload), &answers{})).To(Succeed())
			Expect(usecase.Drive(ctx, controller, item("com.example.agent"), domain.Simple(domain.CmdDisableRequest), &answers{})).NotTo(Succeed())

			records, err := journal.Recent(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))

			var ops []domain.MutationOp
			failed := 0
			for _, rec := range records {
				Expect(rec.Label).To(Equal("com.example.agent"))
				Expect(rec.Domain).To(Equal(domain.DomainUserLogin))
				ops = append(ops, rec.Operation)
				if !rec.Succeeded {
					failed++
					Expect(rec.Error).To(ContainSubstring("Could not disable"))
					Expect(rec.Command).To(Equal(domain.Disable(domain.DomainUserLogin)))
				}
			}
			Expect(ops).To(ConsistOf(domain.OpUnload, domain.OpLoad, domain.OpDisable))
			Expect(failed).To(Equal(1))
		})
	})
})
