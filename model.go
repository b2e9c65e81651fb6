package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/entro314-labs/drivepurge/internal/drive"
	"github.com/entro314-labs/drivepurge/internal/dupes"
	"github.com/entro314-labs/drivepurge/internal/files"
	"github.com/entro314-labs/drivepurge/internal/logging"
	"github.com/entro314-labs/drivepurge/internal/provider"
	"github.com/entro314-labs/drivepurge/internal/scan"
	"github.com/entro314-labs/drivepurge/internal/selection"
	"github.com/entro314-labs/drivepurge/internal/session"
	"github.com/entro314-labs/drivepurge/internal/trash"
)

type view int

const (
	viewIntro view = iota
	viewScanning
	viewResults
	viewDone
)

type scanner interface {
	For(token string) scan.Runner
}

type deleterFor interface {
	For(token string) trash.Deleter
}

// services are the collaborators the model drives through commands.
type services struct {
	session   *session.Manager
	scanner   scanner
	trasher   deleterFor
	demo      func() scan.Runner
	demoTrash trash.Deleter
	log       *zap.Logger
}

type confirmState struct {
	active bool
	ids    []string
	size   int64
}

type deleteOutcome int

const (
	outcomeTrashed deleteOutcome = iota
	outcomePartial
	outcomeNothing
)

type deleteSummary struct {
	outcome   deleteOutcome
	requested int
	trashed   int
	freed     int64
	demo      bool
	err       error
}

const (
	fieldClientID = iota
	fieldToken
)

type settingsForm struct {
	active      bool
	focus       int
	inputs      []textinput.Model
	storedToken string
}

type model struct {
	table   table.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap
	scanBar progress.Model

	svc        services
	baseCtx    context.Context
	baseCancel context.CancelFunc

	view        view
	prevView    view
	session     session.Session
	authPrompt  *drive.Prompt
	authPending bool

	files     []files.Record
	groups    []dupes.Group
	selected  *selection.Set
	rowIDs    []string
	rowGroup  []int
	demo      bool
	truncated bool

	scanID       int
	scanDemo     bool
	scanStream   <-chan scan.Event
	scanProgress int
	scanStatus   string
	scanFile     string
	scanStart    time.Time
	lastScan     time.Duration

	deleting    bool
	deleteCount int
	lastDelete  *deleteSummary

	confirm        confirmState
	confirmDeletes bool
	settings       settingsForm

	err       string
	lastEvent string
	width     int
	height    int
}

func NewModel(ctx context.Context, svc services, confirmDeletes bool) model {
	baseCtx, baseCancel := context.WithCancel(ctx)
	svc.log = logging.OrNop(svc.log).Named("ui")

	km := table.DefaultKeyMap()
	km.PageDown.SetKeys("f", "pgdown")
	km.HalfPageDown.SetKeys("ctrl+d")
	km.HalfPageUp.SetKeys("ctrl+u")

	t := table.New(
		table.WithColumns(tableColumns(80)),
		table.WithFocused(true),
		table.WithKeyMap(km),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("238")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))

	m := model{
		table:          t,
		spinner:        sp,
		help:           help.New(),
		keys:           newKeyMap(),
		scanBar:        progress.New(progress.WithDefaultGradient()),
		svc:            svc,
		baseCtx:        baseCtx,
		baseCancel:     baseCancel,
		selected:       &selection.Set{},
		confirmDeletes: confirmDeletes,
	}
	if svc.session != nil {
		m.session = svc.session.Current()
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.session.Active() && m.session.Identity == nil {
		return tea.Batch(m.spinner.Tick, resolveIdentityCmd(m.baseCtx, m.svc.session))
	}
	return m.spinner.Tick
}

func (m model) busy() bool {
	return m.deleting || m.authPending || m.view == viewScanning
}

func (m model) activeKeys() keyMap {
	return m.keys.forView(m.view, m.deleting || m.authPending)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	forwardToTable := true

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.updateLayout(msg.Width, msg.Height)
	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		updated, cmd := m.scanBar.Update(msg)
		if next, ok := updated.(progress.Model); ok {
			m.scanBar = next
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	case scanStreamMsg:
		if msg.ID != m.scanID {
			break
		}
		m.scanStream = msg.Ch
		cmds = append(cmds, waitScanMsg(msg.ID, msg.Ch))
	case scanEventMsg:
		if msg.ID != m.scanID {
			break
		}
		if cmd := m.applyScanEvent(msg.Event); cmd != nil {
			cmds = append(cmds, cmd)
		}
	case scanClosedMsg:
		if msg.ID != m.scanID || m.view != viewScanning {
			break
		}
		m.scanStream = nil
		m.view = m.prevView
		m.lastEvent = "Scan stopped"
	case authPromptMsg:
		prompt := msg.Prompt
		m.authPrompt = &prompt
		m.lastEvent = "Waiting for approval in the browser"
	case signedInMsg:
		m.authPending = false
		m.authPrompt = nil
		m.session = msg.Session
		if msg.Err != nil {
			m.err = provider.Describe(msg.Err)
			if errors.Is(msg.Err, provider.ErrAuthUnavailable) {
				m.openSettings()
			}
			break
		}
		m.err = ""
		m.lastEvent = fmt.Sprintf("Signed in as %s", identityName(m.session))
	case identityMsg:
		m.session = msg.Session
		if msg.Err != nil {
			m.lastEvent = "Could not read account details, continuing without them"
		}
	case settingsSavedMsg:
		m.session = msg.Session
		if msg.Err != nil {
			m.err = fmt.Sprintf("Could not save settings: %v", msg.Err)
			break
		}
		m.err = ""
		switch {
		case msg.Activated:
			// Drive results belong to the credential that listed them.
			if !m.demo && len(m.files) > 0 {
				m.reset()
			}
			m.lastEvent = "Signed in with access token"
			cmds = append(cmds, resolveIdentityCmd(m.baseCtx, m.svc.session))
		case m.svc.session.ManualToken() != "" && !m.session.Active():
			m.lastEvent = fmt.Sprintf("Token saved, but it does not look like an access token (%s...)", session.ManualTokenPrefix)
		default:
			m.lastEvent = "Settings saved"
		}
	case signedOutMsg:
		m.session = m.svc.session.Current()
		m.reset()
		if msg.Err != nil {
			m.err = provider.Describe(msg.Err)
		} else {
			m.err = ""
			m.lastEvent = "Signed out"
		}
	case deleteDoneMsg:
		m.finishDelete(msg)
	case tea.KeyMsg:
		forwardToTable = false
		if m.settings.active {
			return m.updateSettings(msg)
		}
		if m.confirm.active {
			switch msg.String() {
			case "y", "Y":
				ids := append([]string{}, m.confirm.ids...)
				m.confirm = confirmState{}
				if cmd := m.startDelete(ids); cmd != nil {
					cmds = append(cmds, cmd)
				}
			case "n", "N", "esc":
				m.confirm = confirmState{}
				m.lastEvent = "Nothing was moved to trash"
			case "ctrl+c":
				m.baseCancel()
				return m, tea.Quit
			}
			break
		}

		keys := m.activeKeys()
		switch {
		case key.Matches(msg, keys.Quit):
			m.baseCancel()
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, keys.Scan):
			var scanCmds []tea.Cmd
			m, scanCmds = m.startScan()
			cmds = append(cmds, scanCmds...)
		case key.Matches(msg, keys.SignIn):
			if cmd := m.signIn(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		case key.Matches(msg, keys.SignOut):
			if cmd := m.signOut(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		case key.Matches(msg, keys.Settings):
			m.openSettings()
			cmds = append(cmds, textinput.Blink)
		case key.Matches(msg, keys.ToggleMark):
			m.toggleMark()
		case key.Matches(msg, keys.KeepOldest):
			m.applyPolicy(selection.PolicyKeepOldest)
		case key.Matches(msg, keys.KeepNewest):
			m.applyPolicy(selection.PolicyKeepNewest)
		case key.Matches(msg, keys.ClearMarks):
			m.applyPolicy(selection.PolicyClear)
		case key.Matches(msg, keys.Delete):
			if cmd := m.requestDelete(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		case key.Matches(msg, keys.ToggleConfirm):
			m.confirmDeletes = !m.confirmDeletes
			if m.confirmDeletes {
				m.lastEvent = "Confirm prompts enabled"
			} else {
				m.lastEvent = "Confirm prompts disabled"
			}
		case key.Matches(msg, keys.Back):
			m.back()
		default:
			forwardToTable = m.view == viewResults
		}
	}

	if forwardToTable {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) updateLayout(width, height int) {
	if width == 0 || height == 0 {
		return
	}
	width = max(width, 60)
	height = max(height, 16)
	if m.width == width && m.height == height {
		return
	}
	m.width = width
	m.height = height

	m.table.SetColumns(tableColumns(width))
	headerHeight := lipgloss.Height(m.headerView())
	statusHeight := lipgloss.Height(m.statusView())
	footerHeight := lipgloss.Height(m.footerView())
	available := max(height-headerHeight-statusHeight-footerHeight-8, 5)
	m.table.SetHeight(available)
	m.table.SetWidth(width - 4)
	m.scanBar.Width = max(width-16, 20)
	m.help.Width = width - 4
}

// startScan dispatches a real scan when a credential is held and a demo scan
// otherwise. Scans never overlap.
func (m model) startScan() (model, []tea.Cmd) {
	if m.busy() {
		return m, nil
	}

	var runner scan.Runner
	if token, ok := m.svc.session.Token(); ok {
		runner = m.svc.scanner.For(token)
		m.scanDemo = false
	} else {
		runner = m.svc.demo()
		m.scanDemo = true
	}

	m.prevView = m.view
	if m.prevView == viewDone {
		m.prevView = viewResults
	}
	if m.prevView == viewResults && len(m.files) == 0 {
		m.prevView = viewIntro
	}
	m.scanID++
	m.view = viewScanning
	m.scanStream = nil
	m.scanProgress = 0
	m.scanStatus = ""
	m.scanFile = ""
	m.scanStart = time.Now()
	m.err = ""
	m.confirm = confirmState{}
	m.lastEvent = "Scanning…"
	m.svc.log.Info("scan started", zap.Bool("demo", m.scanDemo), zap.Int("scan_id", m.scanID))

	return m, []tea.Cmd{m.spinner.Tick, scanStartCmd(m.baseCtx, runner, m.scanID)}
}

func (m *model) applyScanEvent(ev scan.Event) tea.Cmd {
	m.scanProgress = max(m.scanProgress, ev.Progress)
	if ev.Status != "" {
		m.scanStatus = ev.Status
	}
	if ev.CurrentFile != "" {
		m.scanFile = ev.CurrentFile
	}
	if !ev.Done {
		if m.scanStream == nil {
			return nil
		}
		return waitScanMsg(m.scanID, m.scanStream)
	}

	m.scanStream = nil
	m.lastScan = time.Since(m.scanStart)
	if ev.Err != nil {
		m.view = m.prevView
		m.err = "Scan failed: " + provider.Describe(ev.Err)
		m.lastEvent = ""
		m.svc.log.Warn("scan failed", zap.Int("scan_id", m.scanID), zap.Error(ev.Err))
		return nil
	}

	m.setFiles(ev.Files, m.scanDemo)
	m.truncated = ev.Truncated
	m.lastDelete = nil
	m.view = viewResults
	m.lastEvent = fmt.Sprintf("Scan complete: %d files, %d duplicate sets", len(m.files), len(m.groups))
	return nil
}

// setFiles replaces the file list wholesale and starts a fresh selection.
func (m *model) setFiles(records []files.Record, demo bool) {
	m.files = records
	m.groups = dupes.Find(records)
	m.selected = &selection.Set{}
	m.demo = demo
	m.setTableRows()
	m.table.SetCursor(0)
}

func (m *model) setTableRows() {
	n := dupes.Count(m.groups)
	rows := make([]table.Row, 0, n)
	m.rowIDs = make([]string, 0, n)
	m.rowGroup = make([]int, 0, n)
	for gi, g := range m.groups {
		for mi, rec := range g.Members {
			rows = append(rows, memberRow(rec, m.selected.Has(rec.ID), gi, mi, len(g.Members)))
			m.rowIDs = append(m.rowIDs, rec.ID)
			m.rowGroup = append(m.rowGroup, gi)
		}
	}
	m.table.SetRows(rows)
}

func (m model) cursorRow() (int, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rowIDs) {
		return 0, false
	}
	return idx, true
}

func (m *model) toggleMark() {
	idx, ok := m.cursorRow()
	if !ok {
		return
	}
	id := m.rowIDs[idx]
	if !m.selected.Toggle(id) {
		m.lastEvent = "Selection is locked while files are moved to trash"
		return
	}
	if m.selected.Has(id) {
		m.lastEvent = "Selected for trash"
	} else {
		m.lastEvent = "Kept"
	}
	m.setTableRows()
}

func (m *model) applyPolicy(p selection.Policy) {
	if !m.selected.Apply(p, m.groups) {
		m.lastEvent = "Selection is locked while files are moved to trash"
		return
	}
	if p == selection.PolicyClear {
		m.lastEvent = "Selection cleared"
	} else {
		m.lastEvent = fmt.Sprintf("%s: %d file(s) selected", p, m.selected.Len())
	}
	m.setTableRows()
}

func (m *model) requestDelete() tea.Cmd {
	ids := m.selected.IDs()
	if len(ids) == 0 {
		m.lastEvent = "Nothing selected"
		return nil
	}
	if m.confirmDeletes {
		m.confirm = confirmState{active: true, ids: ids, size: m.selected.Size(m.files)}
		return nil
	}
	return m.startDelete(ids)
}

func (m *model) startDelete(ids []string) tea.Cmd {
	if len(ids) == 0 || m.deleting {
		return nil
	}

	var deleter trash.Deleter
	if m.demo {
		deleter = m.svc.demoTrash
	} else {
		token, _ := m.svc.session.Token()
		deleter = m.svc.trasher.For(token)
	}

	m.selected.Freeze()
	m.deleting = true
	m.deleteCount = len(ids)
	m.err = ""
	m.lastEvent = fmt.Sprintf("Moving %d file(s) to trash…", len(ids))
	m.svc.log.Info("delete started", zap.Int("count", len(ids)), zap.Bool("demo", m.demo))
	return tea.Batch(m.spinner.Tick, deleteCmd(m.baseCtx, deleter, ids))
}

func (m *model) finishDelete(msg deleteDoneMsg) {
	m.deleting = false
	m.selected.Thaw()

	summary := deleteSummary{
		requested: msg.Report.Requested,
		trashed:   len(msg.Report.Trashed),
		demo:      m.demo,
		err:       msg.Err,
	}
	trashed := make(map[string]struct{}, len(msg.Report.Trashed))
	for _, id := range msg.Report.Trashed {
		trashed[id] = struct{}{}
	}
	summary.freed = files.TotalSize(m.files, trashed)

	var partial *trash.PartialFailureError
	switch {
	case msg.Err == nil:
		summary.outcome = outcomeTrashed
	case errors.As(msg.Err, &partial) && !partial.NothingTrashed():
		summary.outcome = outcomePartial
	default:
		summary.outcome = outcomeNothing
	}

	// Demo data is never changed by a delete.
	if !m.demo && len(trashed) > 0 {
		m.files = files.Without(m.files, trashed)
		m.groups = dupes.Find(m.files)
		m.selected.Prune(m.groups)
		m.setTableRows()
		m.table.SetCursor(0)
	}

	m.lastDelete = &summary
	m.view = viewDone
	switch summary.outcome {
	case outcomeTrashed:
		m.lastEvent = fmt.Sprintf("Moved %d file(s) to trash", summary.trashed)
	case outcomePartial:
		m.lastEvent = fmt.Sprintf("Moved %d of %d file(s), some files may remain", summary.trashed, summary.requested)
	default:
		m.lastEvent = "Nothing was moved to trash"
	}
}

// back leaves the results or completion screen. A finished cleanup resets to
// the intro screen; after a failure the remaining results stay available.
func (m *model) back() {
	switch m.view {
	case viewResults:
		m.reset()
	case viewDone:
		if m.lastDelete != nil && m.lastDelete.outcome != outcomeTrashed {
			m.view = viewResults
			return
		}
		m.reset()
	}
}

func (m *model) reset() {
	m.view = viewIntro
	m.files = nil
	m.groups = nil
	m.selected = &selection.Set{}
	m.demo = false
	m.truncated = false
	m.lastDelete = nil
	m.scanProgress = 0
	m.setTableRows()
}

// signIn prefers a stored manual token, then the interactive provider, and
// falls back to the settings form when neither is configured.
func (m *model) signIn() tea.Cmd {
	mgr := m.svc.session
	if token := mgr.ManualToken(); token != "" {
		return manualSignInCmd(mgr, token)
	}
	if !mgr.CanAcquireInteractive() {
		m.err = provider.Describe(provider.ErrAuthUnavailable)
		m.openSettings()
		return textinput.Blink
	}
	m.authPending = true
	m.err = ""
	m.lastEvent = "Requesting sign-in code…"
	return tea.Batch(m.spinner.Tick, signInCmd(m.baseCtx, mgr))
}

func (m *model) signOut() tea.Cmd {
	if !m.session.Active() {
		m.lastEvent = "Not signed in"
		return nil
	}
	return signOutCmd(m.baseCtx, m.svc.session)
}

func (m *model) openSettings() {
	mgr := m.svc.session

	clientID := textinput.New()
	clientID.Prompt = "Client ID     "
	clientID.Placeholder = "1234-abc.apps.googleusercontent.com"
	clientID.CharLimit = 256
	clientID.SetValue(mgr.ClientID())
	clientID.Focus()

	token := textinput.New()
	token.Prompt = "Access token  "
	token.Placeholder = session.ManualTokenPrefix + "..."
	token.EchoMode = textinput.EchoPassword
	token.CharLimit = 4096
	token.SetValue(mgr.ManualToken())

	m.settings = settingsForm{
		active:      true,
		focus:       fieldClientID,
		inputs:      []textinput.Model{clientID, token},
		storedToken: mgr.ManualToken(),
	}
}

func (m model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.baseCancel()
		return m, tea.Quit
	case "esc":
		m.settings = settingsForm{}
		m.lastEvent = "Settings unchanged"
		return m, nil
	case "tab", "shift+tab", "up", "down":
		m.settings.inputs[m.settings.focus].Blur()
		m.settings.focus = (m.settings.focus + 1) % len(m.settings.inputs)
		return m, m.settings.inputs[m.settings.focus].Focus()
	case "enter":
		clientID := m.settings.inputs[fieldClientID].Value()
		token := m.settings.inputs[fieldToken].Value()
		changed := token != m.settings.storedToken
		m.settings = settingsForm{}
		return m, saveSettingsCmd(m.svc.session, clientID, token, changed)
	}

	var cmd tea.Cmd
	m.settings.inputs[m.settings.focus], cmd = m.settings.inputs[m.settings.focus].Update(msg)
	return m, cmd
}

func identityName(s session.Session) string {
	if s.Identity == nil || s.Identity.Name == "" {
		return session.Placeholder.Name
	}
	return s.Identity.Name
}
