package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/entro314-labs/drivepurge/internal/dupes"
	"github.com/entro314-labs/drivepurge/internal/files"
	"github.com/entro314-labs/drivepurge/internal/provider"
	"github.com/entro314-labs/drivepurge/internal/session"
)

type styles struct {
	base      lipgloss.Style
	header    lipgloss.Style
	title     lipgloss.Style
	subtitle  lipgloss.Style
	status    lipgloss.Style
	muted     lipgloss.Style
	accent    lipgloss.Style
	danger    lipgloss.Style
	warning   lipgloss.Style
	confirm   lipgloss.Style
	chip      lipgloss.Style
	demo      lipgloss.Style
	container lipgloss.Style
}

var ui = styles{
	base: lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("238")),
	container: lipgloss.NewStyle().Padding(0, 1),
	header:    lipgloss.NewStyle().Padding(0, 1),
	title:     lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
	subtitle:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	status:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	accent:    lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
	danger:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
	warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	confirm:   lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("203")).Bold(true).Padding(0, 1),
	chip:      lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62")).Padding(0, 1),
	demo:      lipgloss.NewStyle().Foreground(lipgloss.Color("16")).Background(lipgloss.Color("214")).Bold(true).Padding(0, 1),
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading…"
	}

	var body string
	switch {
	case m.settings.active:
		body = m.settingsView()
	case m.view == viewScanning:
		body = m.scanningView()
	case m.view == viewResults:
		body = m.resultsView()
	case m.view == viewDone:
		body = m.doneView()
	default:
		body = m.introView()
	}

	view := lipgloss.JoinVertical(
		lipgloss.Left,
		m.headerView(),
		body,
		m.statusView(),
		m.footerView(),
	)
	return ui.container.Render(view)
}

func (m model) headerView() string {
	title := ui.title.Render("drivepurge")
	subtitle := ui.subtitle.Render("Find duplicate files in Google Drive and move the extras to trash")

	parts := []string{title}
	if m.session.Active() {
		parts = append(parts, " ", ui.chip.Render(fmt.Sprintf("%s · %s", identityName(m.session), m.session.Method)))
	} else {
		parts = append(parts, " ", ui.muted.Render("not signed in"))
	}
	if m.demo && (m.view == viewResults || m.view == viewDone) {
		parts = append(parts, " ", ui.demo.Render("DEMO MODE"))
	}
	line := lipgloss.JoinHorizontal(lipgloss.Left, parts...)
	return ui.header.Render(lipgloss.JoinVertical(lipgloss.Left, line, subtitle))
}

func (m model) introView() string {
	lines := []string{
		ui.status.Render("Files are grouped by the checksum Drive reports. Extra copies go to the Drive trash and stay recoverable."),
		"",
	}
	switch {
	case m.authPrompt != nil:
		lines = append(lines,
			ui.status.Render("Open this link in a browser to sign in:"),
			ui.accent.Render(m.authPrompt.URL),
			ui.muted.Render(fmt.Sprintf("%s Waiting for approval, link expires %s", m.spinner.View(), humanize.Time(m.authPrompt.Expiry))),
		)
	case m.authPending:
		lines = append(lines, ui.muted.Render(m.spinner.View()+" Starting sign-in…"))
	case m.session.Active():
		lines = append(lines, ui.accent.Render("Press enter to scan your Drive."))
	default:
		lines = append(lines,
			ui.accent.Render("Press enter to try it on demo data."),
			ui.muted.Render("Press l to sign in, or , to add a client ID or access token."),
		)
	}
	return ui.base.Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m model) scanningView() string {
	status := m.scanStatus
	if status == "" {
		status = "Starting…"
	}
	lines := []string{
		ui.status.Render(fmt.Sprintf("%s %s", m.spinner.View(), status)),
		m.scanBar.ViewAs(float64(m.scanProgress) / 100),
	}
	if m.scanFile != "" {
		lines = append(lines, ui.muted.Render(truncate(m.scanFile, max(m.width-10, 20))))
	}
	elapsed := time.Since(m.scanStart).Truncate(100 * time.Millisecond)
	lines = append(lines, ui.muted.Render(fmt.Sprintf("Elapsed %s", elapsed)))
	return ui.base.Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m model) resultsView() string {
	readouts := []string{
		ui.accent.Render(fmt.Sprintf("Potential savings %s", formatBytes(dupes.WastedSpace(m.groups)))),
		ui.status.Render(fmt.Sprintf("Duplicate sets %d", len(m.groups))),
		ui.status.Render(fmt.Sprintf("Files scanned %s", humanize.Comma(int64(len(m.files))))),
	}
	lines := []string{strings.Join(readouts, ui.muted.Render(" · "))}
	if m.truncated {
		lines = append(lines, ui.warning.Render("Page limit reached: only part of the Drive was scanned"))
	}
	if len(m.groups) == 0 {
		lines = append(lines, "", ui.status.Render("No duplicates found."))
		return ui.base.Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	}
	lines = append(lines, ui.base.Render(m.table.View()))
	if detail := m.groupDetail(); detail != "" {
		lines = append(lines, ui.muted.Render(detail))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// groupDetail describes the group under the cursor.
func (m model) groupDetail() string {
	idx, ok := m.cursorRow()
	if !ok {
		return ""
	}
	g := m.groups[m.rowGroup[idx]]
	first := g.Members[0]
	return fmt.Sprintf("%s · %d copies · %s each · checksum %s", first.Name, len(g.Members), formatBytes(first.Size), shortHash(g.Hash))
}

func (m model) doneView() string {
	s := m.lastDelete
	if s == nil {
		return ""
	}
	var lines []string
	switch s.outcome {
	case outcomeTrashed:
		lines = append(lines,
			ui.accent.Render("Cleanup successful!"),
			ui.status.Render("Files have been moved to your Drive Trash."),
			ui.muted.Render(fmt.Sprintf("%d file(s) · %s reclaimed", s.trashed, formatBytes(s.freed))),
		)
		if s.demo {
			lines = append(lines, ui.warning.Render("Demo mode: nothing in Drive was changed."))
		}
	case outcomePartial:
		lines = append(lines,
			ui.warning.Render("Some files may remain."),
			ui.status.Render(fmt.Sprintf("%d of %d file(s) were moved to trash; %d could not be.", s.trashed, s.requested, s.requested-s.trashed)),
			ui.muted.Render(provider.Describe(s.err)),
		)
	default:
		lines = append(lines,
			ui.danger.Render("Nothing was moved to trash."),
			ui.status.Render("No files were changed, so it is safe to try again."),
			ui.muted.Render(provider.Describe(s.err)),
		)
	}
	lines = append(lines, "", ui.muted.Render("enter scan again · esc back"))
	return ui.base.Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m model) settingsView() string {
	lines := []string{ui.title.Render("Settings"), ""}
	for _, in := range m.settings.inputs {
		lines = append(lines, in.View())
	}
	lines = append(lines,
		"",
		ui.muted.Render(fmt.Sprintf("A token starting with %q signs in directly. Leave it empty to use the client ID.", session.ManualTokenPrefix)),
		ui.muted.Render("tab switch field · enter save · esc cancel"),
	)
	return ui.base.Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m model) statusView() string {
	if m.err != "" {
		return ui.danger.Render("Error: " + m.err)
	}
	if m.deleting {
		return ui.status.Render(fmt.Sprintf("%s Moving %d file(s) to trash…", m.spinner.View(), m.deleteCount))
	}
	if m.view != viewResults {
		if m.lastScan > 0 && m.view == viewDone {
			return ui.muted.Render(fmt.Sprintf("Last scan took %s", m.lastScan.Truncate(10*time.Millisecond)))
		}
		return ""
	}
	parts := []string{
		fmt.Sprintf("Selected: %d", m.selected.Len()),
		fmt.Sprintf("Size: %s", formatBytes(m.selected.Size(m.files))),
		fmt.Sprintf("Confirm: %s", boolLabel(m.confirmDeletes)),
	}
	if m.lastScan > 0 {
		parts = append(parts, fmt.Sprintf("Scan: %s", m.lastScan.Truncate(10*time.Millisecond)))
	}
	return ui.status.Render(strings.Join(parts, " · "))
}

func (m model) footerView() string {
	if m.confirm.active {
		return ui.confirm.Render(fmt.Sprintf("Move %d file(s) (%s) to Drive trash? (y/n)", len(m.confirm.ids), formatBytes(m.confirm.size)))
	}
	if m.settings.active {
		return ""
	}
	helpView := m.help.View(m.activeKeys())
	if m.lastEvent != "" {
		return lipgloss.JoinVertical(lipgloss.Left, ui.muted.Render(m.lastEvent), helpView)
	}
	return helpView
}

func tableColumns(width int) []table.Column {
	markWidth := 3
	sizeWidth := 10
	createdWidth := 18
	setWidth := 8
	nameWidth := max(width-markWidth-sizeWidth-createdWidth-setWidth-14, 20)
	return []table.Column{
		{Title: "", Width: markWidth},
		{Title: "Name", Width: nameWidth},
		{Title: "Size", Width: sizeWidth},
		{Title: "Created", Width: createdWidth},
		{Title: "Set", Width: setWidth},
	}
}

func memberRow(rec files.Record, selected bool, group, member, count int) table.Row {
	mark := "[ ]"
	if selected {
		mark = "[x]"
	}
	created := "unknown"
	if !rec.CreatedTime.IsZero() {
		created = rec.CreatedTime.Local().Format("2006-01-02 15:04")
	}
	return table.Row{
		mark,
		rec.Name,
		formatBytes(rec.Size),
		created,
		fmt.Sprintf("%d·%d/%d", group+1, member+1, count),
	}
}

func formatBytes(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(size))
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

func boolLabel(value bool) string {
	if value {
		return "on"
	}
	return "off"
}
