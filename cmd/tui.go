// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/udscope/pkg/datalist"
	"github.com/Thermoquad/udscope/pkg/poller"
	"github.com/Thermoquad/udscope/pkg/uds"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries  = 100
	sparklineWidth = 24
	labelWidth     = 22
	valueWidth     = 34 // 32 binary digits plus suffix
)

//////////////////////////////////////////////////////////////
// Styles
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

//////////////////////////////////////////////////////////////
// Key Bindings
//////////////////////////////////////////////////////////////

type pollKeyMap struct {
	Toggle key.Binding
	Hex    key.Binding
	Bin    key.Binding
	Dec    key.Binding
	Reset  key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k pollKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Hex, k.Bin, k.Dec, k.Help, k.Quit}
}

func (k pollKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Reset},
		{k.Hex, k.Bin, k.Dec},
		{k.Help, k.Quit},
	}
}

func defaultPollKeys() pollKeyMap {
	return pollKeyMap{
		Toggle: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "start/stop polling")),
		Hex:    key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hex")),
		Bin:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "binary")),
		Dec:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "decimal")),
		Reset:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset statistics")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// Messages
type tickMsg time.Time
type cycleMsg uint64
type pollErrorMsg struct {
	label string
	err   error
}

// rowStatus is the last reported outcome of a row, for change detection
type rowStatus struct {
	kind uds.OutcomeKind
	nrc  byte
}

// pollModel is the TUI for the poll command
type pollModel struct {
	data     *datalist.Table
	poller   *poller.Poller
	connInfo string
	listPath string

	mode     uds.DisplayMode
	keys     pollKeyMap
	help     help.Model
	rows     table.Model
	lastSeen []rowStatus

	stats    poller.Statistics
	cycles   uint64
	started  time.Time
	eventLog []eventLogEntry

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

func initialPollModel(data *datalist.Table, p *poller.Poller, connInfo, listPath string, mode uds.DisplayMode) pollModel {
	columns := []table.Column{
		{Title: "Label", Width: labelWidth},
		{Title: "DID", Width: 6},
		{Title: "Type", Width: 7},
		{Title: "Value", Width: valueWidth},
		{Title: "Status", Width: 18},
		{Title: "History", Width: sparklineWidth},
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))

	rows := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(data.Len()+1),
		table.WithStyles(styles),
	)

	m := pollModel{
		data:     data,
		poller:   p,
		connInfo: connInfo,
		listPath: listPath,
		mode:     mode,
		keys:     defaultPollKeys(),
		help:     help.New(),
		rows:     rows,
		lastSeen: make([]rowStatus, data.Len()),
		stats:    p.Stats(),
		started:  time.Now(),
		eventLog: make([]eventLogEntry, 0),
		width:    80,
		height:   24,
	}
	m.refreshRows()
	return m
}

func (m pollModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m pollModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			if m.poller.Toggle() {
				m.addLogEntry("Polling started", false)
			} else {
				m.addLogEntry("Polling stopped", false)
			}
			return m, nil
		case key.Matches(msg, m.keys.Hex):
			m.mode = m.mode.Toggle(uds.ModeHex)
			m.refreshRows()
			return m, nil
		case key.Matches(msg, m.keys.Bin):
			m.mode = m.mode.Toggle(uds.ModeBin)
			m.refreshRows()
			return m, nil
		case key.Matches(msg, m.keys.Dec):
			m.mode = uds.ModeDec
			m.refreshRows()
			return m, nil
		case key.Matches(msg, m.keys.Reset):
			m.poller.ResetStats()
			m.stats = m.poller.Stats()
			m.addLogEntry("Statistics reset", false)
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.stats = m.poller.Stats()
		return m, tickCmd()

	case cycleMsg:
		m.cycles = uint64(msg)
		m.refreshRows()
		return m, nil

	case pollErrorMsg:
		m.addLogEntry(fmt.Sprintf("%s: %v", msg.label, msg.err), true)
		return m, nil
	}

	var cmd tea.Cmd
	m.rows, cmd = m.rows.Update(msg)
	return m, cmd
}

// refreshRows renders a table snapshot and logs outcome changes
func (m *pollModel) refreshRows() {
	snaps := m.data.Snapshot()
	rows := make([]table.Row, len(snaps))
	for i, s := range snaps {
		rows[i] = table.Row{
			s.Label,
			fmt.Sprintf("%04X", s.ID),
			s.Type.String(),
			uds.Format(s.Value, s.Type, m.mode),
			statusText(s),
			datalist.Sparkline(s.History, sparklineWidth),
		}

		if s.Updated.IsZero() {
			continue
		}
		cur := rowStatus{kind: s.Outcome, nrc: s.NRC}
		if cur != m.lastSeen[i] {
			m.logTransition(s, m.lastSeen[i])
			m.lastSeen[i] = cur
		}
	}
	m.rows.SetRows(rows)
}

func (m *pollModel) logTransition(s datalist.RowSnapshot, prev rowStatus) {
	switch s.Outcome {
	case uds.NegativeResponse:
		m.addLogEntry(fmt.Sprintf("%s (%04X): negative response 0x%02X %s",
			s.Label, s.ID, s.NRC, uds.NRCName(s.NRC)), true)
	case uds.Malformed:
		m.addLogEntry(fmt.Sprintf("%s (%04X): malformed response", s.Label, s.ID), true)
	case uds.Value:
		if prev.kind != uds.NoData || prev.nrc != 0 {
			m.addLogEntry(fmt.Sprintf("%s (%04X): responding again", s.Label, s.ID), false)
		}
	}
}

func statusText(s datalist.RowSnapshot) string {
	if s.Updated.IsZero() {
		return "-"
	}
	switch s.Outcome {
	case uds.Value:
		return "ok"
	case uds.NoData:
		return "no data"
	case uds.NegativeResponse:
		return fmt.Sprintf("NRC 0x%02X", s.NRC)
	case uds.Malformed:
		return "malformed"
	default:
		return s.Outcome.String()
	}
}

func (m *pollModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

// formatUptime formats a duration in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m pollModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("UDSCOPE - READ DATA BY IDENTIFIER"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | List: %s | Display: %s",
		m.connInfo, m.listPath, m.mode)))
	s.WriteString("\n\n")

	// Polling status
	if m.poller.Enabled() {
		s.WriteString(statsValueStyle.Render("● Polling"))
	} else {
		s.WriteString(warningStyle.Render("⏸ Paused (space to start)"))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  cycle %d", m.cycles)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.rows.View()))
	s.WriteString("\n")

	// Statistics
	st := m.stats
	var valuePercent float64
	if st.Transactions > 0 {
		valuePercent = float64(st.Values) * 100.0 / float64(st.Transactions)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Transactions)),
		statsLabelStyle.Render("Values:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Values, valuePercent)),
		statsLabelStyle.Render("Timeouts:"), warningStyle.Render(fmt.Sprintf("%d", st.Timeouts)),
		statsLabelStyle.Render("Session:"), statsValueStyle.Render(formatUptime(uint64(time.Since(m.started).Milliseconds()))),
	))

	if st.Negative > 0 || st.Malformed > 0 || st.IOErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Negative:"), errorStyle.Render(fmt.Sprintf("%d", st.Negative)),
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", st.Malformed)),
			statsLabelStyle.Render("I/O Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.IOErrors)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Request Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f req/s", st.TransactionRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if st.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - m.data.Len() - 17
	if logHeight < 3 {
		logHeight = 3
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	logWidth := m.width - 4
	if logWidth < 20 {
		logWidth = 20
	}
	s.WriteString(boxStyle.Width(logWidth).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}
