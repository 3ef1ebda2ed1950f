package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
)

type controllerFixture struct {
	controller *Controller
	transport  *mockTransport
	store      *mockStore
	surface    *mockSurface
	pager      *mockPager
	cache      *EntryCache
}

func newControllerFixture() *controllerFixture {
	f := &controllerFixture{
		transport: newMockTransport(),
		store:     newMockStore(),
		surface:   &mockSurface{},
		pager:     &mockPager{},
		cache:     NewEntryCache(),
	}
	exec := NewExecutor(ExecutorDeps{
		Transport: f.transport,
		Cache:     f.cache,
		Pipes:     osPipeFactory{},
		Pager:     f.pager,
	}, zap.NewNop())
	f.controller = NewController(f.store, exec, f.surface, zap.NewNop())
	return f
}

func TestController_Requests(t *testing.T) {
	known := itemWith("job", domain.DomainUser, domain.SessionAqua, 42)
	unknown := itemWith("job", domain.DomainUnknown, domain.SessionUnknown, 0)
	domainOnly := itemWith("job", domain.DomainSystem, domain.SessionUnknown, 0)

	tests := []struct {
		name string
		item *domain.ServiceListItem
		cmd  domain.Command
		want domain.Command
	}{
		{"load always prompts for both", known, domain.Simple(domain.CmdLoadRequest),
			domain.Prompt("job", false, domain.ContinueLoad)},
		{"unload with known domain", known, domain.Simple(domain.CmdUnloadRequest),
			domain.Unload(domain.DomainUser)},
		{"unload with unknown domain", unknown, domain.Simple(domain.CmdUnloadRequest),
			domain.Prompt("job", true, domain.ContinueUnload)},
		{"enable always prompts", known, domain.Simple(domain.CmdEnableRequest),
			domain.Prompt("job", true, domain.ContinueEnable)},
		{"disable with known domain", known, domain.Simple(domain.CmdDisableRequest),
			domain.Chain(domain.Disable(domain.DomainUser))},
		{"disable with unknown domain", unknown, domain.Simple(domain.CmdDisableRequest),
			domain.Prompt("job", true, domain.ContinueDisable)},
		{"reload with known domain and session", known, domain.Simple(domain.CmdReload),
			domain.Chain(domain.Unload(domain.DomainUser), domain.Load(domain.SessionAqua, domain.DomainUser))},
		{"reload with unknown domain", unknown, domain.Simple(domain.CmdReload),
			domain.Prompt("job", false, domain.ContinueReload)},
		{"reload with unknown session", domainOnly, domain.Simple(domain.CmdReload),
			domain.Prompt("job", false, domain.ContinueReload)},
		{"quit is a no-op", known, domain.Simple(domain.CmdQuit), domain.Command{}},
		{"focus is a no-op", known, domain.Simple(domain.CmdFocusServiceList), domain.Command{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture()
			got, err := f.controller.Handle(context.Background(), tt.item, tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, f.transport.mutations, "requests never mutate")
		})
	}
}

func TestController_ReloadPromptNeverLoadsWithoutSession(t *testing.T) {
	f := newControllerFixture()
	prompt, err := f.controller.Handle(context.Background(),
		itemWith("job", domain.DomainUnknown, domain.SessionUnknown, 0), domain.Simple(domain.CmdReload))
	require.NoError(t, err)
	require.Equal(t, domain.CmdDomainSessionPrompt, prompt.Kind)

	_, err = prompt.Continuation.Apply(domain.DomainSystem, domain.SessionUnknown)
	var cmdErr *domain.CommandError
	assert.ErrorAs(t, err, &cmdErr)

	cmds, err := prompt.Continuation.Apply(domain.DomainSystem, domain.SessionSystem)
	require.NoError(t, err)
	assert.Equal(t, []domain.Command{
		domain.Unload(domain.DomainSystem),
		domain.Load(domain.SessionSystem, domain.DomainSystem),
	}, cmds)
}

func TestController_SelectionRequired(t *testing.T) {
	bare := &domain.ServiceListItem{Name: "running.only", JobType: domain.JobLoaded}
	cmds := []domain.Command{
		domain.Simple(domain.CmdLoadRequest),
		domain.Simple(domain.CmdUnloadRequest),
		domain.Simple(domain.CmdEnableRequest),
		domain.Simple(domain.CmdDisableRequest),
		domain.Simple(domain.CmdReload),
		domain.Simple(domain.CmdEdit),
		domain.Load(domain.SessionAqua, domain.DomainUser),
		domain.Unload(domain.DomainUser),
		domain.Enable(domain.DomainUser),
		domain.Disable(domain.DomainUser),
	}

	for _, cmd := range cmds {
		t.Run(cmd.String(), func(t *testing.T) {
			f := newControllerFixture()

			_, err := f.controller.Handle(context.Background(), nil, cmd)
			var cmdErr *domain.CommandError
			require.ErrorAs(t, err, &cmdErr)
			assert.ErrorIs(t, err, domain.ErrNoSelection)

			_, err = f.controller.Handle(context.Background(), bare, cmd)
			require.ErrorAs(t, err, &cmdErr)
			assert.ErrorIs(t, err, domain.ErrNoConfig)

			assert.Empty(t, f.transport.mutations)
			assert.Empty(t, f.store.edited)
		})
	}
}

func TestController_EditSuccessYieldsConfirmReload(t *testing.T) {
	f := newControllerFixture()
	item := itemWith("job", domain.DomainUser, domain.SessionAqua, 0)

	got, err := f.controller.Handle(context.Background(), item, domain.Simple(domain.CmdEdit))
	require.NoError(t, err)

	assert.Equal(t, domain.CmdConfirm, got.Kind)
	assert.Equal(t, "Reload job?", got.Message)
	require.Len(t, got.Commands, 1)
	assert.Equal(t, domain.CmdReload, got.Commands[0].Kind)

	assert.Equal(t, []string{"job"}, f.store.edited)
	assert.Equal(t, 1, f.surface.cleared)
	assert.Empty(t, f.transport.mutations, "edit never reloads on its own")
}

func TestController_EditFailure(t *testing.T) {
	f := newControllerFixture()
	f.store.editErr = errors.New("edited plist is invalid")

	got, err := f.controller.Handle(context.Background(),
		itemWith("job", domain.DomainUser, domain.SessionAqua, 0), domain.Simple(domain.CmdEdit))

	var cmdErr *domain.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Contains(t, err.Error(), "edited plist is invalid")
	assert.True(t, got.IsZero(), "no confirm after a failed edit")
	assert.Equal(t, 0, f.surface.cleared)
}

func TestController_PrimitivesExecute(t *testing.T) {
	item := itemWith("job", domain.DomainUser, domain.SessionBackground, 7)

	tests := []struct {
		cmd  domain.Command
		want domain.Mutation
	}{
		{domain.Load(domain.SessionAqua, domain.DomainUserLogin), domain.Mutation{
			Op: domain.OpLoad, Label: "job", PlistPath: item.Status.Plist.PlistPath,
			Domain: domain.DomainUserLogin, Session: domain.SessionAqua}},
		{domain.Unload(domain.DomainUser), domain.Mutation{
			Op: domain.OpUnload, Label: "job", PlistPath: item.Status.Plist.PlistPath,
			Domain: domain.DomainUser, Session: domain.SessionBackground}},
		{domain.Enable(domain.DomainSystem), domain.Mutation{
			Op: domain.OpEnable, Label: "job", PlistPath: item.Status.Plist.PlistPath,
			Domain: domain.DomainSystem}},
		{domain.Disable(domain.DomainSystem), domain.Mutation{
			Op: domain.OpDisable, Label: "job", PlistPath: item.Status.Plist.PlistPath,
			Domain: domain.DomainSystem}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			f := newControllerFixture()
			next, err := f.controller.Handle(context.Background(), item, tt.cmd)
			require.NoError(t, err)
			assert.True(t, next.IsZero())
			assert.Equal(t, []domain.Mutation{tt.want}, f.transport.mutations)
		})
	}
}

func TestController_LoadWithoutSessionFails(t *testing.T) {
	f := newControllerFixture()
	_, err := f.controller.Handle(context.Background(),
		itemWith("job", domain.DomainUser, domain.SessionAqua, 0),
		domain.Load(domain.SessionUnknown, domain.DomainUser))

	var cmdErr *domain.CommandError
	assert.ErrorAs(t, err, &cmdErr)
	assert.Empty(t, f.transport.mutations)
}

func TestController_MutationFailureIsCommandError(t *testing.T) {
	f := newControllerFixture()
	f.transport.mutateErr = &domain.TransportError{Op: "unload", Domain: domain.DomainUser, Err: errors.New("boom")}

	_, err := f.controller.Handle(context.Background(),
		itemWith("job", domain.DomainUser, domain.SessionAqua, 0), domain.Unload(domain.DomainUser))

	var cmdErr *domain.CommandError
	require.ErrorAs(t, err, &cmdErr)
	var tErr *domain.TransportError
	assert.ErrorAs(t, err, &tErr)
}

func TestController_ChainRunsInOrder(t *testing.T) {
	f := newControllerFixture()
	item := itemWith("job", domain.DomainUser, domain.SessionAqua, 0)

	next, err := f.controller.Handle(context.Background(), item, domain.Simple(domain.CmdReload))
	require.NoError(t, err)
	next, err = f.controller.Handle(context.Background(), item, next)
	require.NoError(t, err)
	assert.True(t, next.IsZero())

	require.Len(t, f.transport.mutations, 2)
	assert.Equal(t, domain.OpUnload, f.transport.mutations[0].Op)
	assert.Equal(t, domain.OpLoad, f.transport.mutations[1].Op)
}

func TestController_ChainAbortsOnFirstFailure(t *testing.T) {
	f := newControllerFixture()
	item := itemWith("job", domain.DomainUser, domain.SessionAqua, 0)

	_, err := f.controller.Handle(context.Background(), item, domain.Chain(
		domain.Load(domain.SessionUnknown, domain.DomainUser),
		domain.Enable(domain.DomainUser),
	))

	assert.Error(t, err)
	assert.Empty(t, f.transport.mutations, "members after the failure do not run")
}

func TestController_ChainFollowsNonInteractiveResults(t *testing.T) {
	f := newControllerFixture()
	item := itemWith("job", domain.DomainUser, domain.SessionAqua, 0)

	// Confirm(Reload) approved: reload expands to unload+load in place.
	next, err := f.controller.Handle(context.Background(), item, domain.Chain(domain.Simple(domain.CmdReload)))
	require.NoError(t, err)
	assert.True(t, next.IsZero())
	assert.Len(t, f.transport.mutations, 2)
}

func TestController_ChainInteractiveMember(t *testing.T) {
	unknown := itemWith("job", domain.DomainUnknown, domain.SessionUnknown, 0)

	t.Run("last member hands back the prompt", func(t *testing.T) {
		f := newControllerFixture()
		next, err := f.controller.Handle(context.Background(), unknown, domain.Chain(domain.Simple(domain.CmdReload)))
		require.NoError(t, err)
		assert.Equal(t, domain.Prompt("job", false, domain.ContinueReload), next)
	})

	t.Run("middle member is an error", func(t *testing.T) {
		f := newControllerFixture()
		_, err := f.controller.Handle(context.Background(), unknown, domain.Chain(
			domain.Simple(domain.CmdLoadRequest),
			domain.Enable(domain.DomainUser),
		))
		var cmdErr *domain.CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Empty(t, f.transport.mutations)
	})
}

func TestController_ProcInfo(t *testing.T) {
	f := newControllerFixture()
	f.transport.procinfo = "program = /usr/local/bin/agent\n"

	next, err := f.controller.Handle(context.Background(),
		itemWith("job", domain.DomainUser, domain.SessionAqua, 42), domain.Simple(domain.CmdProcInfo))
	require.NoError(t, err)
	assert.True(t, next.IsZero())
	assert.Contains(t, string(f.pager.data), "program = /usr/local/bin/agent")

	_, err = f.controller.Handle(context.Background(), nil, domain.Simple(domain.CmdProcInfo))
	assert.ErrorIs(t, err, domain.ErrNoSelection)
}
