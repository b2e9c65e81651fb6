package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entro314-labs/drivepurge/internal/drive"
	"github.com/entro314-labs/drivepurge/internal/files"
	"github.com/entro314-labs/drivepurge/internal/provider"
	"github.com/entro314-labs/drivepurge/internal/scan"
	"github.com/entro314-labs/drivepurge/internal/session"
	"github.com/entro314-labs/drivepurge/internal/store"
	"github.com/entro314-labs/drivepurge/internal/trash"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func sampleRecords(origin files.Origin) []files.Record {
	return []files.Record{
		{ID: "1", Name: "a.jpg", Hash: "a", Size: 100, CreatedTime: t0, Origin: origin},
		{ID: "2", Name: "a.jpg", Hash: "a", Size: 100, CreatedTime: t0.Add(time.Hour), Origin: origin},
		{ID: "3", Name: "b.pdf", Hash: "b", Size: 50, CreatedTime: t0.Add(2 * time.Hour), Origin: origin},
	}
}

type scriptedRunner struct {
	events []scan.Event
}

func (r scriptedRunner) Run(ctx context.Context, out chan<- scan.Event) {
	defer close(out)
	for _, ev := range r.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func succeeding(records []files.Record) scriptedRunner {
	return scriptedRunner{events: []scan.Event{
		{Progress: 15, Status: "Fetching page 1..."},
		{Progress: 95, Status: "Analyzing duplicates..."},
		{Progress: 100, Status: "Scan complete", Done: true, Files: records},
	}}
}

type fakeScanner struct {
	mu      sync.Mutex
	runners []scan.Runner
	tokens  []string
}

func (f *fakeScanner) For(token string) scan.Runner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	r := f.runners[0]
	if len(f.runners) > 1 {
		f.runners = f.runners[1:]
	}
	return r
}

type fakeTrasher struct {
	mu   sync.Mutex
	fail map[string]error
	seen []string
}

func (f *fakeTrasher) Trash(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, id)
	return f.fail[id]
}

type fakeAuth struct {
	token   string
	err     error
	revoked []string
}

func (f *fakeAuth) RequestToken(context.Context) (string, error) { return f.token, f.err }
func (f *fakeAuth) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return nil
}

type fakeResolver struct {
	id  provider.Identity
	err error
}

func (f fakeResolver) Resolve(context.Context, string) (provider.Identity, error) {
	return f.id, f.err
}

type harness struct {
	store   *store.Memory
	mgr     *session.Manager
	auth    *fakeAuth
	scanner *fakeScanner
	trasher *fakeTrasher
	demo    scan.Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   store.NewMemory(),
		auth:    &fakeAuth{token: "ya29.interactive"},
		scanner: &fakeScanner{runners: []scan.Runner{succeeding(sampleRecords(files.OriginDrive))}},
		trasher: &fakeTrasher{fail: map[string]error{}},
		demo:    succeeding(sampleRecords(files.OriginDemo)),
	}
	h.mgr = session.New(session.Options{
		NewAuthorizer: func(string) provider.Authorizer { return h.auth },
		Resolver:      fakeResolver{id: provider.Identity{Name: "Ada"}},
		Store:         h.store,
	})
	h.mgr.Restore()
	return h
}

func (h *harness) model(confirm bool) model {
	svc := services{
		session:   h.mgr,
		scanner:   h.scanner,
		trasher:   trash.NewExecutor(h.trasher, trash.Options{}),
		demo:      func() scan.Runner { return h.demo },
		demoTrash: trash.Simulated{},
	}
	return NewModel(context.Background(), svc, confirm)
}

func (h *harness) signInManually(t *testing.T) {
	t.Helper()
	active, err := h.mgr.SetManualCredential("ya29.manual")
	require.NoError(t, err)
	require.True(t, active)
}

func press(m model, k string) (model, tea.Cmd) {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "space":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// pump executes cmd and feeds the pipeline messages it produces back into m
// until none are left. Timer-driven messages are dropped.
func pump(t *testing.T, m model, cmd tea.Cmd) model {
	t.Helper()
	queue := runCmd(cmd)
	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]
		switch msg.(type) {
		case scanStreamMsg, scanEventMsg, scanClosedMsg, deleteDoneMsg,
			signedInMsg, identityMsg, settingsSavedMsg, signedOutMsg:
		default:
			continue
		}
		next, c := m.Update(msg)
		m = next.(model)
		queue = append(queue, runCmd(c)...)
	}
	return m
}

func scanned(t *testing.T, m model) model {
	t.Helper()
	m, cmd := press(m, "enter")
	require.Equal(t, viewScanning, m.view)
	m = pump(t, m, cmd)
	require.Equal(t, viewResults, m.view, m.err)
	return m
}

func selectedIDs(m model) []string {
	return m.selected.IDs()
}

func TestScanWithoutSessionUsesDemo(t *testing.T) {
	h := newHarness(t)
	m := scanned(t, h.model(false))

	assert.True(t, m.demo)
	assert.Empty(t, h.scanner.tokens)
	assert.Len(t, m.files, 3)
	require.Len(t, m.groups, 1)
	assert.Equal(t, []string{"1", "2"}, m.rowIDs)
	assert.Equal(t, 100, m.scanProgress)
}

func TestScanWithSessionUsesEngine(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	m := scanned(t, h.model(false))

	assert.False(t, m.demo)
	assert.Equal(t, []string{"ya29.manual"}, h.scanner.tokens)
	assert.Equal(t, files.OriginDrive, m.files[0].Origin)
}

func TestScanFailureKeepsPreviousFiles(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	h.scanner.runners = []scan.Runner{
		succeeding(sampleRecords(files.OriginDrive)),
		scriptedRunner{events: []scan.Event{
			{Progress: 15, Status: "Fetching page 1..."},
			{Progress: 30, Status: "Fetching page 3..."},
			{Done: true, Err: fmt.Errorf("list page 3: %w", provider.ErrCredentialInvalid)},
		}},
	}
	m := scanned(t, h.model(false))
	before := m.files

	m, cmd := press(m, "r")
	require.Equal(t, viewScanning, m.view)
	m = pump(t, m, cmd)

	assert.Equal(t, viewResults, m.view)
	assert.Equal(t, before, m.files)
	assert.Contains(t, m.err, "Sign in again")
}

func TestScanFailureFromIntroReturnsToIntro(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	h.scanner.runners = []scan.Runner{scriptedRunner{events: []scan.Event{
		{Done: true, Err: fmt.Errorf("list page 1: %w", provider.ErrTransport)},
	}}}

	m, cmd := press(h.model(false), "enter")
	m = pump(t, m, cmd)

	assert.Equal(t, viewIntro, m.view)
	assert.Nil(t, m.files)
	assert.Contains(t, m.err, "Error talking to Drive")
}

func TestStaleScanEventsAreIgnored(t *testing.T) {
	h := newHarness(t)
	m, _ := press(h.model(false), "enter")

	next, _ := m.Update(scanEventMsg{ID: m.scanID - 1, Event: scan.Event{Done: true, Files: sampleRecords(files.OriginDemo)}})
	m = next.(model)
	assert.Equal(t, viewScanning, m.view)
	assert.Nil(t, m.files)
}

func TestScanProgressNeverDecreases(t *testing.T) {
	h := newHarness(t)
	m, _ := press(h.model(false), "enter")

	for _, p := range []int{30, 10, 45} {
		next, _ := m.Update(scanEventMsg{ID: m.scanID, Event: scan.Event{Progress: p}})
		m = next.(model)
	}
	assert.Equal(t, 45, m.scanProgress)
}

func TestPolicyReplacesManualSelection(t *testing.T) {
	h := newHarness(t)
	m := scanned(t, h.model(false))

	m, _ = press(m, "space")
	assert.Equal(t, []string{"1"}, selectedIDs(m))

	m, _ = press(m, "o")
	assert.Equal(t, []string{"2"}, selectedIDs(m))

	m, _ = press(m, "n")
	assert.Equal(t, []string{"1"}, selectedIDs(m))

	m, _ = press(m, "x")
	assert.Empty(t, selectedIDs(m))
}

func TestToggleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	m := scanned(t, h.model(false))

	m, _ = press(m, "space")
	m, _ = press(m, "space")
	assert.Empty(t, selectedIDs(m))
	assert.Equal(t, "Kept", m.lastEvent)
}

func TestSelectionFrozenWhileDeleting(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	m := scanned(t, h.model(false))

	m, _ = press(m, "o")
	m, cmd := press(m, "d")
	require.True(t, m.deleting)
	assert.True(t, m.selected.Frozen())

	m, _ = press(m, "x")
	m.toggleMark()
	assert.Equal(t, []string{"2"}, selectedIDs(m))

	m = pump(t, m, cmd)
	assert.False(t, m.deleting)
	assert.False(t, m.selected.Frozen())
	assert.Equal(t, viewDone, m.view)
	require.NotNil(t, m.lastDelete)
	assert.Equal(t, outcomeTrashed, m.lastDelete.outcome)
	assert.Equal(t, int64(100), m.lastDelete.freed)
	assert.Equal(t, []string{"2"}, h.trasher.seen)

	assert.Len(t, m.files, 2)
	assert.Empty(t, m.groups)
	assert.Zero(t, m.selected.Len())
}

func TestConfirmPrompt(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	m := scanned(t, h.model(true))

	m, _ = press(m, "o")
	m, _ = press(m, "d")
	require.True(t, m.confirm.active)
	assert.Equal(t, int64(100), m.confirm.size)
	assert.Contains(t, m.footerView(), "Move 1 file(s)")

	m, _ = press(m, "n")
	assert.False(t, m.confirm.active)
	assert.False(t, m.deleting)
	assert.Empty(t, h.trasher.seen)

	m, _ = press(m, "d")
	m, cmd := press(m, "y")
	m = pump(t, m, cmd)
	assert.Equal(t, viewDone, m.view)
	assert.Equal(t, []string{"2"}, h.trasher.seen)
}

func TestEmptySelectionDoesNotDelete(t *testing.T) {
	h := newHarness(t)
	m := scanned(t, h.model(false))

	m, cmd := press(m, "d")
	assert.Nil(t, cmd)
	assert.False(t, m.deleting)
	assert.Equal(t, "Nothing selected", m.lastEvent)
}

func fourCopies() []files.Record {
	var records []files.Record
	for i := 1; i <= 4; i++ {
		records = append(records, files.Record{
			ID:          fmt.Sprintf("c%d", i),
			Name:        "backup.zip",
			Hash:        "zip",
			Size:        1000,
			CreatedTime: t0.Add(time.Duration(i) * time.Minute),
		})
	}
	return records
}

func TestPartialDeleteKeepsRemainingResults(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	h.scanner.runners = []scan.Runner{succeeding(fourCopies())}
	h.trasher.fail["c3"] = errors.New("rate limited")
	m := scanned(t, h.model(false))

	m, _ = press(m, "o")
	m, cmd := press(m, "d")
	m = pump(t, m, cmd)

	require.Equal(t, viewDone, m.view)
	assert.Equal(t, outcomePartial, m.lastDelete.outcome)
	assert.Equal(t, 3, m.lastDelete.requested)
	assert.Equal(t, 2, m.lastDelete.trashed)
	assert.Contains(t, m.doneView(), "Some files may remain")

	m, _ = press(m, "esc")
	assert.Equal(t, viewResults, m.view)
	assert.Equal(t, []string{"c1", "c3"}, m.rowIDs)
	assert.Equal(t, []string{"c3"}, selectedIDs(m))
}

func TestPartialDeleteNeverLeavesLastCopySelected(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	h.trasher.fail["2"] = errors.New("rate limited")
	m := scanned(t, h.model(false))

	m, _ = press(m, "space")
	m.table.SetCursor(1)
	m, _ = press(m, "space")
	require.Equal(t, []string{"1", "2"}, selectedIDs(m))

	m, cmd := press(m, "d")
	m = pump(t, m, cmd)
	require.Equal(t, outcomePartial, m.lastDelete.outcome)

	// "2" survived and is now the only copy of its file.
	m, _ = press(m, "esc")
	require.Equal(t, viewResults, m.view)
	assert.Empty(t, m.groups)
	assert.Empty(t, m.rowIDs)
	assert.Empty(t, selectedIDs(m))
	assert.Zero(t, m.selected.Size(m.files))

	delete(h.trasher.fail, "2")
	m, cmd = press(m, "d")
	assert.Nil(t, cmd)
	assert.Equal(t, "Nothing selected", m.lastEvent)
	assert.ElementsMatch(t, []string{"1", "2"}, h.trasher.seen)
	assert.Len(t, m.files, 2)
}

func TestNothingTrashed(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	h.trasher.fail["2"] = fmt.Errorf("%w: 401", provider.ErrCredentialInvalid)
	m := scanned(t, h.model(false))

	m, _ = press(m, "o")
	m, cmd := press(m, "d")
	m = pump(t, m, cmd)

	assert.Equal(t, outcomeNothing, m.lastDelete.outcome)
	assert.Len(t, m.files, 3)
	assert.Contains(t, m.doneView(), "safe to try again")
	assert.Contains(t, m.doneView(), "Sign in again")
}

func TestDemoDeleteLeavesDataUntouched(t *testing.T) {
	h := newHarness(t)
	m := scanned(t, h.model(false))

	m, _ = press(m, "o")
	m, cmd := press(m, "d")
	m = pump(t, m, cmd)

	assert.Equal(t, outcomeTrashed, m.lastDelete.outcome)
	assert.True(t, m.lastDelete.demo)
	assert.Len(t, m.files, 3)
	assert.Empty(t, h.trasher.seen)

	m, _ = press(m, "esc")
	assert.Equal(t, viewIntro, m.view)
	assert.Nil(t, m.files)
}

func TestManualTokenWithoutPrefixIsOnlyStored(t *testing.T) {
	h := newHarness(t)
	m := h.model(false)

	m = pump(t, m, saveSettingsCmd(h.mgr, "", "not-a-token", true))

	assert.False(t, m.session.Active())
	assert.Nil(t, m.session.Identity)
	assert.Equal(t, "not-a-token", h.store.Get(store.KeyManualToken))
	assert.Contains(t, m.lastEvent, "does not look like an access token")
}

func TestManualTokenSignsInAndResolvesIdentity(t *testing.T) {
	h := newHarness(t)
	m := h.model(false)

	m = pump(t, m, saveSettingsCmd(h.mgr, "client-1", "ya29.fresh", true))

	require.True(t, m.session.Active())
	assert.Equal(t, session.MethodManual, m.session.Method)
	require.NotNil(t, m.session.Identity)
	assert.Equal(t, "Ada", m.session.Identity.Name)
	assert.Equal(t, "client-1", h.store.Get(store.KeyClientID))
}

func TestSavingClientIDKeepsInteractiveSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.SetClientID("client-1"))
	_, err := h.mgr.AcquireInteractive(context.Background())
	require.NoError(t, err)
	m := h.model(false)

	m = pump(t, m, saveSettingsCmd(h.mgr, "client-2", "", false))
	assert.True(t, m.session.Active())
	assert.Equal(t, session.MethodInteractive, m.session.Method)
}

func TestSignInWithoutConfigurationOpensSettings(t *testing.T) {
	h := newHarness(t)
	m, _ := press(h.model(false), "l")

	assert.True(t, m.settings.active)
	assert.False(t, m.authPending)
	assert.Contains(t, m.err, "settings")
}

func TestInteractiveSignIn(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.SetClientID("client-1"))
	m, cmd := press(h.model(false), "l")
	require.True(t, m.authPending)

	next, _ := m.Update(authPromptMsg{Prompt: drive.Prompt{URL: "https://accounts.google.com/o/oauth2/auth?client_id=client-1", Expiry: time.Now().Add(time.Minute)}})
	m = next.(model)
	assert.Contains(t, m.introView(), "https://accounts.google.com/o/oauth2/auth?client_id=client-1")

	m = pump(t, m, cmd)
	assert.False(t, m.authPending)
	assert.Nil(t, m.authPrompt)
	require.True(t, m.session.Active())
	assert.Equal(t, session.MethodInteractive, m.session.Method)
	assert.Equal(t, "Signed in as Ada", m.lastEvent)
}

func TestInteractiveSignInFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.SetClientID("client-1"))
	h.auth.err = fmt.Errorf("%w: access_denied", provider.ErrAuthFailed)

	m, cmd := press(h.model(false), "l")
	m = pump(t, m, cmd)
	assert.False(t, m.session.Active())
	assert.Equal(t, viewIntro, m.view)
	assert.Contains(t, m.err, "Sign-in failed")
}

func TestSignOutManualClearsStoredToken(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	m, cmd := press(h.model(false), "L")
	m = pump(t, m, cmd)

	assert.False(t, m.session.Active())
	assert.Empty(t, h.store.Get(store.KeyManualToken))
	assert.Empty(t, h.auth.revoked)
}

func TestSignOutInteractiveRevokes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.SetClientID("client-1"))
	m, cmd := press(h.model(false), "l")
	m = pump(t, m, cmd)

	m, cmd = press(m, "L")
	m = pump(t, m, cmd)
	assert.False(t, m.session.Active())
	assert.Equal(t, []string{"ya29.interactive"}, h.auth.revoked)
}

func TestSignOutFromResultsClearsDriveData(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	m := scanned(t, h.model(false))
	m, _ = press(m, "o")
	require.True(t, m.activeKeys().SignOut.Enabled())
	require.True(t, m.activeKeys().Settings.Enabled())

	m, cmd := press(m, "L")
	m = pump(t, m, cmd)
	assert.False(t, m.session.Active())
	assert.Equal(t, viewIntro, m.view)
	assert.Empty(t, m.files)
	assert.Empty(t, selectedIDs(m))
}

func TestSignOutDisabledWhileDeleting(t *testing.T) {
	h := newHarness(t)
	h.signInManually(t)
	m := scanned(t, h.model(false))
	m, _ = press(m, "o")
	m, cmd := press(m, "d")
	require.True(t, m.deleting)

	assert.False(t, m.activeKeys().SignOut.Enabled())
	assert.False(t, m.activeKeys().Settings.Enabled())
	m = pump(t, m, cmd)
	assert.Equal(t, viewDone, m.view)
	assert.True(t, m.activeKeys().SignOut.Enabled())
}

func TestSettingsFormEscapeLeavesStoreAlone(t *testing.T) {
	h := newHarness(t)
	m, _ := press(h.model(false), ",")
	require.True(t, m.settings.active)

	m, _ = press(m, "z")
	assert.Equal(t, "z", m.settings.inputs[fieldClientID].Value())

	m, cmd := press(m, "esc")
	assert.Nil(t, cmd)
	assert.False(t, m.settings.active)
	assert.Empty(t, h.store.Get(store.KeyClientID))
}

func TestViewShowsDemoBadgeAndReadouts(t *testing.T) {
	h := newHarness(t)
	m := h.model(false)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = scanned(t, next.(model))

	out := m.View()
	assert.Contains(t, out, "DEMO MODE")
	assert.Contains(t, out, "Potential savings 100 B")
	assert.Contains(t, out, "Duplicate sets 1")
	assert.Contains(t, out, "Files scanned 3")
}
