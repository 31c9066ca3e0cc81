// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui renders the live compliance dashboard.
//
// # Description
//
// The dashboard is the consumer of the aggregator's command queue. It polls
// the queue every 100ms, keeps the newest report and renders it on one of
// four tabs. Quitting sets the stop signal and closes the command queue so
// later aggregator sends are dropped instead of piling up.
//
// Headless runs use Headless instead, which consumes the same queue and logs
// one line per report.
//
// # Thread Safety
//
// TUI components are designed for single-threaded use within the bubbletea
// event loop. Do not access TUI state from multiple goroutines.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PollInterval is how often the dashboard drains the command queue.
const PollInterval = 100 * time.Millisecond

// =============================================================================
// Tabs
// =============================================================================

// Tab selects the dashboard page.
type Tab int

const (
	TabOverview Tab = iota
	TabServices
	TabCompliance
	TabRisk

	numTabs = 4
)

var tabNames = [numTabs]string{"Overview", "Services", "Compliance", "Risk"}

// String returns the tab title.
func (t Tab) String() string {
	if t < 0 || t >= numTabs {
		return "unknown"
	}
	return tabNames[t]
}

// =============================================================================
// Messages
// =============================================================================

// tickMsg drives the queue poll.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// =============================================================================
// Key Bindings
// =============================================================================

type keyMap struct {
	Next key.Binding
	Prev key.Binding
	Jump key.Binding
	Up   key.Binding
	Down key.Binding
	Help key.Binding
	Quit key.Binding
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Jump, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Jump},
		{k.Up, k.Down},
		{k.Help, k.Quit},
	}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next: key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab/→", "next tab")),
		Prev: key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab/←", "prev tab")),
		Jump: key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "jump to tab")),
		Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
		Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
		Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q/esc", "quit")),
	}
}

// =============================================================================
// Config
// =============================================================================

// DashboardConfig configures the dashboard.
type DashboardConfig struct {
	// Rate, Workers and Interval are shown in the header.
	Rate     int
	Workers  int
	Interval time.Duration

	// RunID is shown in the footer.
	RunID string
}

// =============================================================================
// Model
// =============================================================================

// Dashboard is the bubbletea model for the live dashboard.
type Dashboard struct {
	config   DashboardConfig
	commands *pipeline.Queue[pipeline.Command]
	stop     *pipeline.StopSignal

	report    metrics.Report
	hasReport bool
	tab       Tab

	keys     keyMap
	help     help.Model
	viewport viewport.Model

	width  int
	height int

	ready    bool
	quitting bool
}

// NewDashboard creates a dashboard consuming commands.
//
// # Inputs
//
//   - commands: The aggregator's command queue. Closed on quit.
//   - stop: Set on quit; an externally set signal also ends the program.
//   - config: Header information.
//
// # Outputs
//
//   - Dashboard: Ready-to-use model for tea.NewProgram.
func NewDashboard(commands *pipeline.Queue[pipeline.Command], stop *pipeline.StopSignal, config DashboardConfig) Dashboard {
	return Dashboard{
		config:   config,
		commands: commands,
		stop:     stop,
		keys:     defaultKeyMap(),
		help:     help.New(),
	}
}

// Run starts the program on the alternate screen and blocks until it exits.
func Run(d Dashboard) error {
	p := tea.NewProgram(d, tea.WithAltScreen())
	_, err := p.Run()
	if err != nil {
		d.shutdown()
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// Init implements tea.Model.
func (m Dashboard) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

		headerHeight := 4
		footerHeight := 3
		viewportHeight := m.height - headerHeight - footerHeight
		if viewportHeight < 1 {
			viewportHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.updateViewportContent()
		return m, nil

	case tickMsg:
		if m.stop.Stopped() {
			return m.quit()
		}
		if m.drain() {
			m.updateViewportContent()
		}
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m.quit()

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil

		case key.Matches(msg, m.keys.Next):
			m.setTab((m.tab + 1) % numTabs)
			return m, nil

		case key.Matches(msg, m.keys.Prev):
			m.setTab((m.tab + numTabs - 1) % numTabs)
			return m, nil

		case key.Matches(msg, m.keys.Jump):
			m.setTab(Tab(msg.String()[0] - '1'))
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Dashboard) View() string {
	if m.quitting {
		return "Stopping pipeline...\n"
	}
	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// Report returns the newest report and whether one has arrived.
func (m Dashboard) Report() (metrics.Report, bool) {
	return m.report, m.hasReport
}

// Tab returns the selected tab.
func (m Dashboard) Tab() Tab {
	return m.tab
}

// =============================================================================
// State
// =============================================================================

// drain applies every queued command. It reports whether anything changed.
func (m *Dashboard) drain() bool {
	changed := false
	m.commands.Drain(func(c pipeline.Command) {
		switch c := c.(type) {
		case pipeline.UpdateMetrics:
			m.report = c.Report
			m.hasReport = true
			changed = true
		}
	})
	return changed
}

func (m *Dashboard) setTab(t Tab) {
	if t < 0 || t >= numTabs {
		return
	}
	m.tab = t
	m.viewport.GotoTop()
	m.updateViewportContent()
}

func (m Dashboard) quit() (Dashboard, tea.Cmd) {
	m.shutdown()
	m.quitting = true
	return m, tea.Quit
}

// shutdown stops the pipeline and tells the aggregator nobody is listening.
func (m Dashboard) shutdown() {
	m.stop.Stop()
	m.commands.Close()
}

func (m *Dashboard) updateViewportContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderBody())
}

// =============================================================================
// Rendering
// =============================================================================

func (m Dashboard) contentWidth() int {
	w := m.width - 40
	if w < 10 {
		w = 10
	}
	if w > 60 {
		w = 60
	}
	return w
}

func (m Dashboard) renderHeader() string {
	title := titleStyle.Render("CompliancePulse")
	info := statsStyle.Render(fmt.Sprintf("  %s events/s target · %d workers · %s interval",
		formatCount(uint64(m.config.Rate)), m.config.Workers, m.config.Interval))

	tabs := make([]string, numTabs)
	for i := Tab(0); i < numTabs; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, i)
		if i == m.tab {
			tabs[i] = activeTabStyle.Render(label)
		} else {
			tabs[i] = tabStyle.Render(label)
		}
	}
	return title + info + "\n\n" + lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Dashboard) renderFooter() string {
	status := "waiting for first report"
	if m.hasReport {
		status = fmt.Sprintf("report #%d at %s", m.report.Interval, m.report.GeneratedAt.Format("15:04:05"))
	}
	if m.config.RunID != "" {
		status += " · run " + m.config.RunID
	}
	return statsStyle.Render(status) + "\n" + m.help.View(m.keys)
}

func (m Dashboard) renderBody() string {
	if !m.hasReport {
		return mutedStyle.Render("\n  Collecting the first interval...")
	}
	switch m.tab {
	case TabServices:
		return m.renderServices()
	case TabCompliance:
		return m.renderCompliance()
	case TabRisk:
		return m.renderRisk()
	default:
		return m.renderOverview()
	}
}

func (m Dashboard) renderOverview() string {
	t := m.report.Totals
	w := m.contentWidth()

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Compliance") + "\n")
	b.WriteString(gauge(t.CompliancePercentage(), w) + "\n\n")

	b.WriteString(sectionStyle.Render("Totals") + "\n")
	fmt.Fprintf(&b, "  Events evaluated    %s\n", formatCount(t.TotalEvents))
	fmt.Fprintf(&b, "  Rule violations     %s\n", formatCount(t.TotalViolations()))
	fmt.Fprintf(&b, "  High-risk events    %s\n", formatCount(t.HighRisk))
	fmt.Fprintf(&b, "  Avg. sensitivity    %.1f\n\n", t.AverageSensitivity())

	b.WriteString(sectionStyle.Render("Throughput") + "\n")
	fmt.Fprintf(&b, "  %s events/s\n", formatCount(uint64(m.report.Throughput)))
	fmt.Fprintf(&b, "  %s\n", sparkStyle.Render(sparkline(m.report.RateHistory, w)))
	return b.String()
}

func (m Dashboard) renderServices() string {
	t := m.report.Totals
	w := m.contentWidth()

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Services") + "\n")
	b.WriteString(barChart(event.ServiceNames(), t.Services[:], w, barStyle) + "\n")
	b.WriteString(sectionStyle.Render("Vendors") + "\n")
	b.WriteString(barChart(event.VendorNames(), t.Vendors[:], w, barStyle) + "\n")
	b.WriteString(sectionStyle.Render("Departments") + "\n")
	b.WriteString(barChart(event.DepartmentNames(), t.Departments[:], w, barStyle))
	return b.String()
}

func (m Dashboard) renderCompliance() string {
	t := m.report.Totals
	w := m.contentWidth()

	labels := make([]string, len(event.Rules))
	values := make([]uint64, len(event.Rules))
	for i, r := range event.Rules {
		labels[i] = r.String()
		values[i] = t.Violations(r)
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Violations by rule") + "\n")
	b.WriteString(barChart(labels, values, w, violationStyle) + "\n")

	b.WriteString(sectionStyle.Render("Violation history") + "\n")
	series := [3][]float64{}
	for _, p := range m.report.ViolationHistory {
		series[0] = append(series[0], float64(p.EUAct))
		series[1] = append(series[1], float64(p.GDPR))
		series[2] = append(series[2], float64(p.Internal))
	}
	for i, r := range event.Rules {
		fmt.Fprintf(&b, "  %-16s %s\n", r.String(), sparkStyle.Render(sparkline(series[i], w)))
	}
	return b.String()
}

func (m Dashboard) renderRisk() string {
	t := m.report.Totals
	w := m.contentWidth()

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Risk tiers") + "\n")
	dist := t.RiskDistribution()
	tiers := []string{event.TierHigh.String(), event.TierMedium.String(), event.TierLow.String()}
	counts := []uint64{t.HighRisk, t.MediumRisk, t.LowRisk}
	b.WriteString(barChart(tiers, counts, w, riskStyle))
	fmt.Fprintf(&b, "  high %.1f%% · medium %.1f%% · low %.1f%%\n\n", dist[0], dist[1], dist[2])

	b.WriteString(sectionStyle.Render("Risk factors") + "\n")
	b.WriteString(barChart(event.RiskFactorNames(), t.RiskFactors[:], w, riskStyle))
	return b.String()
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("25")).
			Padding(0, 1)

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	violationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	riskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	sparkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	gaugeGoodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	gaugeWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	gaugeBadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	gaugeEmptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))
)
