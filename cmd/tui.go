// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model shared by monitor (polling) and error_detection (listening)
type model struct {
	title    string
	connInfo string
	polling  bool
	showAll  bool

	stats   *x3.Statistics
	managed bool // stats come from the messenger, not from packetMsg

	latest    x3.Sample
	hasSample bool
	samples   uint64
	stale     uint64

	lanes   table.Model
	spinner spinner.Model
	busy    bool

	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time

type packetMsg struct {
	packet           *x3.Packet
	sent             bool
	validationErrors []x3.ValidationError
}

type sampleMsg struct {
	sample x3.Sample
	fresh  bool
	stats  *x3.Statistics
}

type pollStartMsg struct{}

type connectionLostMsg struct {
	err error
}

type infoMsg string

func laneColumns() []table.Column {
	return []table.Column{
		{Title: "Lane", Width: 4},
		{Title: "Volume", Width: 7},
		{Title: "Long", Width: 6},
		{Title: "Mid", Width: 6},
		{Title: "XL", Width: 6},
		{Title: "Occ%", Width: 7},
		{Title: "Speed", Width: 13},
	}
}

func initialModel(title, connInfo string, polling, showAll bool) model {
	t := table.New(
		table.WithColumns(laneColumns()),
		table.WithHeight(x3.MaxLanes+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Cell
	t.SetStyles(styles)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return model{
		title:         title,
		connInfo:      connInfo,
		polling:       polling,
		showAll:       showAll,
		stats:         x3.NewStatistics(),
		managed:       polling,
		lanes:         t,
		spinner:       s,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollStartMsg:
		m.busy = true

	case infoMsg:
		m.addLogEntry(string(msg), false)

	case connectionLostMsg:
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case packetMsg:
		m.handlePacket(msg)

	case sampleMsg:
		m.busy = false
		if msg.stats != nil {
			m.stats = msg.stats
		}
		if msg.sample.Empty() {
			m.addLogEntry("No sample received", true)
			break
		}
		if !msg.fresh {
			m.stale++
			m.addLogEntry("Poll failed, showing previous sample", true)
		} else {
			m.samples++
		}
		m.latest = msg.sample
		m.hasSample = true
		m.lanes.SetRows(laneRows(msg.sample))
	}

	return m, nil
}

func (m *model) handlePacket(msg packetMsg) {
	p := msg.packet
	if msg.sent {
		if m.showAll {
			m.addLogEntry(fmt.Sprintf("→ %s", x3.Name(p.Qualifier())), false)
		}
		return
	}

	if !m.managed {
		m.stats.Update(p, msg.validationErrors)
	}

	name := x3.Name(p.Qualifier())
	switch {
	case p.Truncated():
		m.addLogEntry(fmt.Sprintf("%s: truncated frame (%d of %d payload bytes)", name, p.PayloadSize(), p.DeclaredSize()), true)
	case p.ChecksumMismatch():
		m.addLogEntry(fmt.Sprintf("%s: checksum mismatch (got 0x%02X)", name, p.Checksum()), true)
	case len(msg.validationErrors) > 0:
		for _, err := range msg.validationErrors {
			m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
		}
	case p.Qualifier() == x3.QualNak:
		m.addLogEntry(fmt.Sprintf("%s from sensor", name), true)
	case m.showAll:
		m.addLogEntry(fmt.Sprintf("← %s (valid)", name), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// laneRows renders a sample as table rows; absent readings show as "--"
func laneRows(s x3.Sample) []table.Row {
	lanes := s.Lanes()
	rows := make([]table.Row, len(lanes))
	for i, r := range lanes {
		speed := "--"
		if r.SpeedKPH >= 0 {
			speed = fmt.Sprintf("%d/%d mph", r.SpeedKPH, r.SpeedMPH)
		}
		occ := "--"
		if r.Occupancy >= 0 {
			occ = fmt.Sprintf("%.1f", r.Occupancy)
		}
		rows[i] = table.Row{
			fmt.Sprintf("%d", r.Lane),
			cellInt(r.Volume),
			cellInt(r.Long),
			cellInt(r.Mid),
			cellInt(r.XL),
			occ,
			speed,
		}
	}
	return rows
}

func cellInt(v int) string {
	if v < 0 {
		return "--"
	}
	return fmt.Sprintf("%d", v)
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")
	filter := "Errors only"
	if m.showAll {
		filter = "All packets"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s | Press 'q' to quit", m.connInfo, filter)))
	s.WriteString("\n\n")

	if m.polling {
		if m.busy {
			s.WriteString(m.spinner.View() + " " + warningStyle.Render("Polling sensor..."))
		} else {
			s.WriteString(statsValueStyle.Render("✓ Idle"))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	errorsTotal := m.stats.Errors()
	if m.stats.TotalPackets > 0 {
		validPercent = float64(m.stats.ValidPackets) * 100.0 / float64(m.stats.TotalPackets)
		errorPercent = float64(errorsTotal) * 100.0 / float64(m.stats.TotalPackets)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errorsTotal, errorPercent)),
	))

	if m.stats.ChecksumErrors > 0 || m.stats.TruncatedFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors)),
			statsLabelStyle.Render("Truncated:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.TruncatedFrames)),
		))
	}
	if m.stats.Anomalies > 0 || m.stats.Naks > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Anomalies)),
			statsLabelStyle.Render("NAKs:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Naks)),
		))
	}
	if m.stats.Requests > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Requests)),
			statsLabelStyle.Render("Retries:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Retries)),
			statsLabelStyle.Render("Timeouts:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Timeouts)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", m.stats.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Lanes (only shown once a sample arrived)
	if m.hasSample {
		s.WriteString(statsLabelStyle.Render(fmt.Sprintf("Latest Sample @ %s", m.latest.Timestamp().Format("15:04:05"))))
		s.WriteString(headerStyle.Render(fmt.Sprintf("  %d samples, %d stale, total volume %d", m.samples, m.stale, m.latest.TotalVolume())))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.lanes.View()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	reserved := 15
	if m.hasSample {
		reserved += len(m.latest.Lanes()) + 5
	}
	logHeight := max(m.height-reserved, 5)

	logContent := strings.Builder{}
	startIdx := max(len(m.eventLog)-logHeight, 0)

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
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

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
