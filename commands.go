package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entro314-labs/drivepurge/internal/drive"
	"github.com/entro314-labs/drivepurge/internal/scan"
	"github.com/entro314-labs/drivepurge/internal/session"
	"github.com/entro314-labs/drivepurge/internal/trash"
)

type scanStreamMsg struct {
	ID int
	Ch <-chan scan.Event
}

type scanEventMsg struct {
	ID    int
	Event scan.Event
}

// scanClosedMsg means the stream ended without a terminal event.
type scanClosedMsg struct {
	ID int
}

type authPromptMsg struct {
	Prompt drive.Prompt
}

type signedInMsg struct {
	Session session.Session
	Err     error
}

type identityMsg struct {
	Session session.Session
	Err     error
}

type settingsSavedMsg struct {
	Session   session.Session
	Activated bool
	Err       error
}

type signedOutMsg struct {
	Err error
}

type deleteDoneMsg struct {
	Report trash.Report
	Err    error
}

func scanStartCmd(ctx context.Context, runner scan.Runner, id int) tea.Cmd {
	return func() tea.Msg {
		ch := make(chan scan.Event)
		go runner.Run(ctx, ch)
		return scanStreamMsg{ID: id, Ch: ch}
	}
}

func waitScanMsg(id int, ch <-chan scan.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return scanClosedMsg{ID: id}
		}
		return scanEventMsg{ID: id, Event: ev}
	}
}

func signInCmd(ctx context.Context, mgr *session.Manager) tea.Cmd {
	return func() tea.Msg {
		s, err := mgr.AcquireInteractive(ctx)
		return signedInMsg{Session: s, Err: err}
	}
}

func manualSignInCmd(mgr *session.Manager, token string) tea.Cmd {
	return func() tea.Msg {
		active, err := mgr.SetManualCredential(token)
		return settingsSavedMsg{Session: mgr.Current(), Activated: active, Err: err}
	}
}

func resolveIdentityCmd(ctx context.Context, mgr *session.Manager) tea.Cmd {
	return func() tea.Msg {
		_, err := mgr.ResolveIdentity(ctx)
		return identityMsg{Session: mgr.Current(), Err: err}
	}
}

// saveSettingsCmd persists the form. The manual token is only re-applied
// when it was edited, so saving a new client ID leaves an interactive
// session alone.
func saveSettingsCmd(mgr *session.Manager, clientID, token string, tokenChanged bool) tea.Cmd {
	return func() tea.Msg {
		if err := mgr.SetClientID(clientID); err != nil {
			return settingsSavedMsg{Session: mgr.Current(), Err: err}
		}
		if !tokenChanged {
			return settingsSavedMsg{Session: mgr.Current()}
		}
		active, err := mgr.SetManualCredential(token)
		return settingsSavedMsg{Session: mgr.Current(), Activated: active, Err: err}
	}
}

func signOutCmd(ctx context.Context, mgr *session.Manager) tea.Cmd {
	return func() tea.Msg {
		return signedOutMsg{Err: mgr.Revoke(ctx)}
	}
}

func deleteCmd(ctx context.Context, deleter trash.Deleter, ids []string) tea.Cmd {
	return func() tea.Msg {
		report, err := deleter.Delete(ctx, ids)
		return deleteDoneMsg{Report: report, Err: err}
	}
}
